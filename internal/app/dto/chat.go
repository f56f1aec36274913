package dto

import (
	"time"

	domainchat "marketchat/internal/domain/chat"
)

// Conversation describes a chat thread from one participant's point of
// view: the counterpart is precomputed so clients never diff the
// participant pair themselves.
type Conversation struct {
	ID                     string       `json:"id"`
	ListingID              string       `json:"listing_id"`
	ListingTitle           string       `json:"listing_title,omitempty"`
	CounterpartID          string       `json:"counterpart_id"`
	CounterpartDisplayName string       `json:"counterpart_display_name,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	LatestMessage          *ChatMessage `json:"latest_message"`
}

// ConversationList is the inbox collection, most recently active first.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_display_name"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// ConversationHistory is the full ordered log plus the listing's current
// lifecycle state, so clients know whether the composer should be open.
type ConversationHistory struct {
	Messages      []ChatMessage `json:"messages"`
	ListingStatus string        `json:"listing_status"`
}

func MapChatMessage(message *domainchat.Message) ChatMessage {
	if message == nil {
		return ChatMessage{}
	}
	return ChatMessage{
		ID:             string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.SenderID),
		SenderName:     message.SenderName,
		Body:           message.Body,
		SentAt:         message.SentAt,
	}
}
