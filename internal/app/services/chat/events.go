package chat

import (
	"context"
	"encoding/json"
	"time"

	domainchat "marketchat/internal/domain/chat"
)

// Topics for downstream consumers (notification fan-out, analytics). The
// broker adapter prepends any configured prefix.
const (
	TopicConversationCreated = "chat.conversation.created"
	TopicMessageSent         = "chat.message.sent"
)

// EventPublisher pushes chat events to a broker. Publishing is always
// best-effort: a failed publish never fails the chat operation that
// produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

type conversationCreatedEvent struct {
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id"`
	SellerID       string    `json:"seller_id"`
	BuyerID        string    `json:"buyer_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type messageSentEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

func encodeConversationCreated(conversation *domainchat.Conversation) ([]byte, error) {
	return json.Marshal(conversationCreatedEvent{
		ConversationID: string(conversation.ID),
		ListingID:      string(conversation.ListingID),
		SellerID:       string(conversation.SellerID),
		BuyerID:        string(conversation.BuyerID),
		CreatedAt:      conversation.CreatedAt,
	})
}

func encodeMessageSent(message *domainchat.Message) ([]byte, error) {
	return json.Marshal(messageSentEvent{
		MessageID:      string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.SenderID),
		Body:           message.Body,
		SentAt:         message.SentAt,
	})
}
