package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// ChatRepository backs the conversation and message contracts with two
// collections. The unique (listing_id, buyer_id) index makes find-or-create
// race-safe, and message_seq on the conversation document hands out the
// per-conversation insertion sequence.
type ChatRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{
		conversations: db.Collection("chat_conversations"),
		messages:      db.Collection("chat_messages"),
	}
}

// EnsureIndexes creates the lookup and ordering indexes. Call once at
// startup.
func (r *ChatRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "last_activity", Value: -1}}},
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "last_activity", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sent_at", Value: 1}, {Key: "seq", Value: 1}},
	})
	return err
}

func (r *ChatRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.conversations.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ChatRepository) ByListingAndBuyer(ctx context.Context, listingID domainlistings.ListingID, buyerID domainuser.ID) (*domainchat.Conversation, error) {
	filter := bson.M{"listing_id": string(listingID), "buyer_id": string(buyerID)}
	var doc conversationDocument
	if err := r.conversations.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ChatRepository) Create(ctx context.Context, conversation *domainchat.Conversation) error {
	doc := newConversationDocument(conversation)
	if _, err := r.conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrConversationExists
		}
		return err
	}
	return nil
}

func (r *ChatRepository) ListByParticipant(ctx context.Context, userID domainuser.ID) ([]domainchat.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"seller_id": string(userID)},
		bson.M{"buyer_id": string(userID)},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	conversations := make([]domainchat.Conversation, 0)
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		conversations = append(conversations, *doc.toDomain())
	}
	return conversations, cursor.Err()
}

func (r *ChatRepository) RecordLastMessage(ctx context.Context, id domainchat.ConversationID, message *domainchat.Message, snippet string) error {
	if message == nil {
		return nil
	}
	update := bson.M{"$set": bson.M{
		"last_message_at":   message.SentAt.UnixMilli(),
		"last_message_id":   string(message.ID),
		"last_sender_id":    string(message.SenderID),
		"last_message_text": snippet,
		"last_activity":     message.SentAt.UnixMilli(),
	}}
	res, err := r.conversations.UpdateOne(ctx, bson.M{"_id": string(id)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ChatRepository) Append(ctx context.Context, message *domainchat.Message) error {
	seq, err := r.nextSeq(ctx, message.ConversationID)
	if err != nil {
		return err
	}
	message.Seq = seq
	_, err = r.messages.InsertOne(ctx, newMessageDocument(message))
	return err
}

func (r *ChatRepository) ListByConversation(ctx context.Context, id domainchat.ConversationID) ([]domainchat.Message, error) {
	if _, err := r.ByID(ctx, id); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := r.messages.Find(ctx, bson.M{"conversation_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := make([]domainchat.Message, 0)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		messages = append(messages, *doc.toDomain())
	}
	return messages, cursor.Err()
}

func (r *ChatRepository) Latest(ctx context.Context, id domainchat.ConversationID) (*domainchat.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "sent_at", Value: -1}, {Key: "seq", Value: -1}})
	var doc messageDocument
	if err := r.messages.FindOne(ctx, bson.M{"conversation_id": string(id)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ChatRepository) nextSeq(ctx context.Context, id domainchat.ConversationID) (int64, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"message_seq": 1}}
	var doc struct {
		MessageSeq int64 `bson:"message_seq"`
	}
	if err := r.conversations.FindOneAndUpdate(ctx, bson.M{"_id": string(id)}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domainchat.ErrConversationNotFound
		}
		return 0, err
	}
	return doc.MessageSeq, nil
}

type conversationDocument struct {
	ID              string `bson:"_id"`
	ListingID       string `bson:"listing_id"`
	SellerID        string `bson:"seller_id"`
	BuyerID         string `bson:"buyer_id"`
	CreatedAt       int64  `bson:"created_at"`
	LastMessageAt   int64  `bson:"last_message_at,omitempty"`
	LastMessageID   string `bson:"last_message_id,omitempty"`
	LastSenderID    string `bson:"last_sender_id,omitempty"`
	LastMessageText string `bson:"last_message_text,omitempty"`
	LastActivity    int64  `bson:"last_activity"`
	MessageSeq      int64  `bson:"message_seq"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	return conversationDocument{
		ID:           string(c.ID),
		ListingID:    string(c.ListingID),
		SellerID:     string(c.SellerID),
		BuyerID:      string(c.BuyerID),
		CreatedAt:    c.CreatedAt.UnixMilli(),
		LastActivity: c.CreatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toDomain() *domainchat.Conversation {
	conversation := &domainchat.Conversation{
		ID:              domainchat.ConversationID(d.ID),
		ListingID:       domainlistings.ListingID(d.ListingID),
		SellerID:        domainuser.ID(d.SellerID),
		BuyerID:         domainuser.ID(d.BuyerID),
		CreatedAt:       timestampToTime(d.CreatedAt),
		LastMessageID:   domainchat.MessageID(d.LastMessageID),
		LastSenderID:    domainuser.ID(d.LastSenderID),
		LastMessageText: d.LastMessageText,
	}
	if d.LastMessageAt > 0 {
		conversation.LastMessageAt = timestampToTime(d.LastMessageAt)
	}
	return conversation
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	SenderName     string `bson:"sender_name"`
	Body           string `bson:"body"`
	Seq            int64  `bson:"seq"`
	SentAt         int64  `bson:"sent_at"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		SenderName:     m.SenderName,
		Body:           m.Body,
		Seq:            m.Seq,
		SentAt:         m.SentAt.UnixMilli(),
	}
}

func (d messageDocument) toDomain() *domainchat.Message {
	return &domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		SenderID:       domainuser.ID(d.SenderID),
		SenderName:     d.SenderName,
		Body:           d.Body,
		Seq:            d.Seq,
		SentAt:         timestampToTime(d.SentAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainchat.ConversationRepository = (*ChatRepository)(nil)
var _ domainchat.MessageRepository = (*ChatRepository)(nil)
