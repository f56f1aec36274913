package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainchat "marketchat/internal/domain/chat"
	domainuser "marketchat/internal/domain/user"
)

const snippetLimit = 500

// Store is the durable message log. Append is the durability boundary: a
// message counts as sent only once Append returns, and fan-out happens
// strictly after.
type Store struct {
	Conversations domainchat.ConversationRepository
	Messages      domainchat.MessageRepository
	Users         domainuser.Repository
	Events        EventPublisher
	Logger        *slog.Logger
}

// ConversationSummary pairs a conversation with its latest message for the
// inbox view. Latest is nil for a conversation nobody has written to yet.
type ConversationSummary struct {
	Conversation domainchat.Conversation
	Latest       *domainchat.Message
}

// Append validates and durably persists a message. SentAt is assigned
// here, at acceptance, never taken from a client clock. The sender's
// display name is snapshotted at the same moment.
func (s *Store) Append(ctx context.Context, conversationID domainchat.ConversationID, senderID domainuser.ID, body string) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domainchat.ErrEmptyMessage
	}
	conversation, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.Participant(senderID) {
		return nil, domainchat.ErrForbidden
	}

	message := &domainchat.Message{
		ID:             domainchat.MessageID(uuid.NewString()),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     s.senderName(ctx, senderID),
		Body:           body,
		SentAt:         time.Now().UTC(),
	}
	if err := s.Messages.Append(ctx, message); err != nil {
		return nil, err
	}

	// best-effort inbox metadata and event fan-out; the message is already
	// durable at this point
	snippet := trimSnippet(body, snippetLimit)
	if err := s.Conversations.RecordLastMessage(ctx, conversationID, message, snippet); err != nil && s.Logger != nil {
		s.Logger.Warn("failed to update last message meta", "error", err, "conversation_id", conversationID)
	}
	s.publishSent(ctx, message)
	return message, nil
}

// History returns the full ordered log for a participant. The result
// always reflects everything durably appended so far; there is no caching
// layer in front of the repository.
func (s *Store) History(ctx context.Context, conversationID domainchat.ConversationID, requesterID domainuser.ID) ([]domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conversation, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.Participant(requesterID) {
		return nil, domainchat.ErrForbidden
	}
	return s.Messages.ListByConversation(ctx, conversationID)
}

// Conversation loads a conversation for a participant.
func (s *Store) Conversation(ctx context.Context, conversationID domainchat.ConversationID, requesterID domainuser.ID) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conversation, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.Participant(requesterID) {
		return nil, domainchat.ErrForbidden
	}
	return conversation, nil
}

// ListForParticipant returns the user's conversations ordered by most
// recent activity, each with its latest message when one exists.
func (s *Store) ListForParticipant(ctx context.Context, userID domainuser.ID) ([]ConversationSummary, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conversations, err := s.Conversations.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		summary := ConversationSummary{Conversation: conversation}
		latest, err := s.Messages.Latest(ctx, conversation.ID)
		if err != nil && !errors.Is(err, domainchat.ErrConversationNotFound) {
			return nil, err
		}
		summary.Latest = latest
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Store) senderName(ctx context.Context, senderID domainuser.ID) string {
	if s.Users == nil {
		return string(senderID)
	}
	sender, err := s.Users.ByID(ctx, senderID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("sender lookup failed", "error", err, "user_id", senderID)
		}
		return string(senderID)
	}
	return sender.DisplayName
}

func (s *Store) publishSent(ctx context.Context, message *domainchat.Message) {
	if s.Events == nil {
		return
	}
	payload, err := encodeMessageSent(message)
	if err != nil {
		return
	}
	if err := s.Events.Publish(ctx, TopicMessageSent, string(message.ConversationID), payload, nil); err != nil && s.Logger != nil {
		s.Logger.Warn("message event publish failed", "error", err, "conversation_id", message.ConversationID)
	}
}

func (s *Store) ensureDependencies() error {
	switch {
	case s.Conversations == nil:
		return errors.New("chat: conversation repository required")
	case s.Messages == nil:
		return errors.New("chat: message repository required")
	default:
		return nil
	}
}

func trimSnippet(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
