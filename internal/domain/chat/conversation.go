package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrConversationExists   = errors.New("chat: conversation already exists")
	ErrForbidden            = errors.New("chat: not a conversation participant")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation on your own listing")
	ErrListingUnavailable   = errors.New("chat: listing no longer accepts new conversations")
	ErrConversationClosed   = errors.New("chat: conversation is closed for new messages")
	ErrEmptyMessage         = errors.New("chat: message body must not be empty")
	ErrIDRequired           = errors.New("chat: id is required")
	ErrParticipantsRequired = errors.New("chat: seller and buyer are required")
)

type ConversationID string
type MessageID string

// Conversation is the durable identity for all messages between one buyer
// and one seller about one listing. At most one exists per
// (listing, buyer, seller) triple; creation goes through find-or-create,
// never a blind insert. The last-message fields are a denormalized
// snapshot maintained on append so the inbox view needs no message scan.
type Conversation struct {
	ID        ConversationID
	ListingID listings.ListingID
	SellerID  user.ID
	BuyerID   user.ID
	CreatedAt time.Time

	LastMessageAt   time.Time
	LastMessageID   MessageID
	LastSenderID    user.ID
	LastMessageText string
}

// Participant reports whether id is one of the two conversation parties.
func (c *Conversation) Participant(id user.ID) bool {
	return id != "" && (id == c.SellerID || id == c.BuyerID)
}

// Counterpart returns the other party for a participant, or empty when the
// given id is not part of the conversation.
func (c *Conversation) Counterpart(id user.ID) user.ID {
	switch id {
	case c.SellerID:
		return c.BuyerID
	case c.BuyerID:
		return c.SellerID
	default:
		return ""
	}
}

// LastActivity orders the inbox: latest message time, or creation time for
// a conversation that has no messages yet.
func (c *Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

type CreateConversationParams struct {
	ID        ConversationID
	ListingID listings.ListingID
	SellerID  user.ID
	BuyerID   user.ID
	Now       time.Time
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	seller := user.ID(strings.TrimSpace(string(params.SellerID)))
	buyer := user.ID(strings.TrimSpace(string(params.BuyerID)))
	if seller == "" || buyer == "" {
		return nil, ErrParticipantsRequired
	}
	if seller == buyer {
		return nil, ErrSelfConversation
	}
	if strings.TrimSpace(string(params.ListingID)) == "" {
		return nil, errors.New("chat: listing id is required")
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Conversation{
		ID:        ConversationID(id),
		ListingID: params.ListingID,
		SellerID:  seller,
		BuyerID:   buyer,
		CreatedAt: now.UTC(),
	}, nil
}

// Message is one chat line. SentAt is assigned at durable acceptance, Seq
// is the per-conversation insertion sequence that breaks SentAt ties.
// Messages are immutable once written.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       user.ID
	SenderName     string
	Body           string
	Seq            int64
	SentAt         time.Time
}

// ConversationRepository persists conversation identities.
//
// ByListingAndBuyer is the find-or-create lookup key: a buyer has at most
// one conversation per listing, so (listing, buyer) resolves the full
// triple without scanning.
type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByListingAndBuyer(ctx context.Context, listingID listings.ListingID, buyerID user.ID) (*Conversation, error)
	Create(ctx context.Context, conversation *Conversation) error
	ListByParticipant(ctx context.Context, userID user.ID) ([]Conversation, error)
	RecordLastMessage(ctx context.Context, id ConversationID, message *Message, snippet string) error
}

// MessageRepository is the append-only message log. Append assigns the
// per-conversation Seq and never rewrites existing entries;
// ListByConversation returns the full log ordered by SentAt, ties broken
// by Seq.
type MessageRepository interface {
	Append(ctx context.Context, message *Message) error
	ListByConversation(ctx context.Context, id ConversationID) ([]Message, error)
	Latest(ctx context.Context, id ConversationID) (*Message, error)
}
