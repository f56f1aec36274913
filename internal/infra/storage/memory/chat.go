package memory

import (
	"context"
	"sort"
	"sync"

	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

type conversationKey struct {
	listing domainlistings.ListingID
	buyer   domainuser.ID
}

// ChatStore keeps conversations and messages in memory. It backs the dev
// storage mode and the test suites; the mongo repositories implement the
// same contracts.
type ChatStore struct {
	mu      sync.RWMutex
	byID    map[domainchat.ConversationID]*domainchat.Conversation
	byKey   map[conversationKey]domainchat.ConversationID
	logs    map[domainchat.ConversationID][]domainchat.Message
	nextSeq map[domainchat.ConversationID]int64
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		byID:    make(map[domainchat.ConversationID]*domainchat.Conversation),
		byKey:   make(map[conversationKey]domainchat.ConversationID),
		logs:    make(map[domainchat.ConversationID][]domainchat.Message),
		nextSeq: make(map[domainchat.ConversationID]int64),
	}
}

func (s *ChatStore) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversation, ok := s.byID[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conversation), nil
}

func (s *ChatStore) ByListingAndBuyer(ctx context.Context, listingID domainlistings.ListingID, buyerID domainuser.ID) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[conversationKey{listing: listingID, buyer: buyerID}]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(s.byID[id]), nil
}

func (s *ChatStore) Create(ctx context.Context, conversation *domainchat.Conversation) error {
	if conversation == nil {
		return domainchat.ErrIDRequired
	}
	key := conversationKey{listing: conversation.ListingID, buyer: conversation.BuyerID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[key]; ok {
		return domainchat.ErrConversationExists
	}
	if _, ok := s.byID[conversation.ID]; ok {
		return domainchat.ErrConversationExists
	}
	s.byKey[key] = conversation.ID
	s.byID[conversation.ID] = cloneConversation(conversation)
	return nil
}

func (s *ChatStore) ListByParticipant(ctx context.Context, userID domainuser.ID) ([]domainchat.Conversation, error) {
	s.mu.RLock()
	conversations := make([]domainchat.Conversation, 0)
	for _, conversation := range s.byID {
		if conversation.Participant(userID) {
			conversations = append(conversations, *cloneConversation(conversation))
		}
	}
	s.mu.RUnlock()

	sort.Slice(conversations, func(i, j int) bool {
		ai, aj := conversations[i].LastActivity(), conversations[j].LastActivity()
		if ai.Equal(aj) {
			return conversations[i].ID < conversations[j].ID
		}
		return ai.After(aj)
	})
	return conversations, nil
}

func (s *ChatStore) RecordLastMessage(ctx context.Context, id domainchat.ConversationID, message *domainchat.Message, snippet string) error {
	if message == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conversation.LastMessageAt = message.SentAt
	conversation.LastMessageID = message.ID
	conversation.LastSenderID = message.SenderID
	conversation.LastMessageText = snippet
	return nil
}

// Append stores the message at the tail of its conversation log and stamps
// the per-conversation insertion sequence onto it.
func (s *ChatStore) Append(ctx context.Context, message *domainchat.Message) error {
	if message == nil {
		return domainchat.ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[message.ConversationID]; !ok {
		return domainchat.ErrConversationNotFound
	}
	s.nextSeq[message.ConversationID]++
	message.Seq = s.nextSeq[message.ConversationID]
	s.logs[message.ConversationID] = append(s.logs[message.ConversationID], *message)
	return nil
}

func (s *ChatStore) ListByConversation(ctx context.Context, id domainchat.ConversationID) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byID[id]; !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	log := s.logs[id]
	out := make([]domainchat.Message, len(log))
	copy(out, log)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out, nil
}

func (s *ChatStore) Latest(ctx context.Context, id domainchat.ConversationID) (*domainchat.Message, error) {
	messages, err := s.ListByConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	latest := messages[len(messages)-1]
	return &latest, nil
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	if c == nil {
		return nil
	}
	copyConversation := *c
	return &copyConversation
}

var _ domainchat.ConversationRepository = (*ChatStore)(nil)
var _ domainchat.MessageRepository = (*ChatStore)(nil)
