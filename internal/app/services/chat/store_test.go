package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "marketchat/internal/domain/chat"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/storage/memory"
)

type storeFixture struct {
	store         *Store
	conversations *memory.ChatStore
	users         *memory.UserRepository
	events        *publisherRecorder
	conversation  *domainchat.Conversation
}

func newStoreFixture(t *testing.T) storeFixture {
	t.Helper()
	conversations := memory.NewChatStore()
	users := memory.NewUserRepository()
	events := &publisherRecorder{}

	for _, u := range []struct{ id, email, name string }{
		{"seller-1", "seller@example.com", "Sanna Seller"},
		{"buyer-1", "buyer@example.com", "Ben Buyer"},
	} {
		account, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(u.id),
			Email:        u.email,
			DisplayName:  u.name,
			PasswordHash: "x",
		})
		require.NoError(t, err)
		require.NoError(t, users.Save(context.Background(), account))
	}

	conversation, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        "conv-1",
		ListingID: "listing-1",
		SellerID:  "seller-1",
		BuyerID:   "buyer-1",
	})
	require.NoError(t, err)
	require.NoError(t, conversations.Create(context.Background(), conversation))

	return storeFixture{
		store: &Store{
			Conversations: conversations,
			Messages:      conversations,
			Users:         users,
			Events:        events,
		},
		conversations: conversations,
		users:         users,
		events:        events,
		conversation:  conversation,
	}
}

func TestAppendPersistsAndStampsMessage(t *testing.T) {
	f := newStoreFixture(t)
	before := time.Now().UTC()

	message, err := f.store.Append(context.Background(), "conv-1", "buyer-1", "  is it still available?  ")
	require.NoError(t, err)

	assert.NotEmpty(t, message.ID)
	assert.Equal(t, "is it still available?", message.Body)
	assert.Equal(t, "Ben Buyer", message.SenderName)
	assert.Equal(t, int64(1), message.Seq)
	assert.False(t, message.SentAt.Before(before))

	history, err := f.store.History(context.Background(), "conv-1", "seller-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, message.ID, history[0].ID)
}

func TestAppendRejectsEmptyBody(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Append(context.Background(), "conv-1", "buyer-1", "   \n\t ")
	assert.ErrorIs(t, err, domainchat.ErrEmptyMessage)

	history, err := f.store.History(context.Background(), "conv-1", "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendRejectsNonParticipant(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Append(context.Background(), "conv-1", "stranger", "let me in")
	assert.ErrorIs(t, err, domainchat.ErrForbidden)
	assert.Empty(t, f.events.byTopic(TopicMessageSent))
}

func TestAppendUnknownConversation(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Append(context.Background(), "no-such-conv", "buyer-1", "hello?")
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}

func TestAppendUpdatesInboxSnapshotAndPublishes(t *testing.T) {
	f := newStoreFixture(t)

	message, err := f.store.Append(context.Background(), "conv-1", "buyer-1", "deal at 40?")
	require.NoError(t, err)

	reloaded, err := f.conversations.ByID(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, message.ID, reloaded.LastMessageID)
	assert.Equal(t, domainuser.ID("buyer-1"), reloaded.LastSenderID)
	assert.Equal(t, "deal at 40?", reloaded.LastMessageText)

	sent := f.events.byTopic(TopicMessageSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "conv-1", sent[0].Key)
}

func TestAppendSnippetIsTruncated(t *testing.T) {
	f := newStoreFixture(t)
	long := strings.Repeat("ä", 700)

	message, err := f.store.Append(context.Background(), "conv-1", "buyer-1", long)
	require.NoError(t, err)
	// stored message keeps the full body
	assert.Len(t, []rune(message.Body), 700)

	reloaded, err := f.conversations.ByID(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, []rune(reloaded.LastMessageText), 500)
}

func TestAppendFallsBackToSenderIDWithoutProfile(t *testing.T) {
	f := newStoreFixture(t)
	// a conversation participant whose account row was purged
	conversation, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        "conv-2",
		ListingID: "listing-2",
		SellerID:  "ghost-seller",
		BuyerID:   "buyer-1",
	})
	require.NoError(t, err)
	require.NoError(t, f.conversations.Create(context.Background(), conversation))

	message, err := f.store.Append(context.Background(), "conv-2", "ghost-seller", "still here")
	require.NoError(t, err)
	assert.Equal(t, "ghost-seller", message.SenderName)
}

func TestHistoryRequiresParticipant(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.History(context.Background(), "conv-1", "stranger")
	assert.ErrorIs(t, err, domainchat.ErrForbidden)
}

func TestHistoryPreservesOrder(t *testing.T) {
	f := newStoreFixture(t)

	bodies := []string{"one", "two", "three", "four"}
	for i, body := range bodies {
		sender := domainuser.ID("buyer-1")
		if i%2 == 1 {
			sender = "seller-1"
		}
		_, err := f.store.Append(context.Background(), "conv-1", sender, body)
		require.NoError(t, err)
	}

	history, err := f.store.History(context.Background(), "conv-1", "buyer-1")
	require.NoError(t, err)
	require.Len(t, history, len(bodies))
	for i, body := range bodies {
		assert.Equal(t, body, history[i].Body)
	}
}

func TestListForParticipant(t *testing.T) {
	f := newStoreFixture(t)
	second, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        "conv-2",
		ListingID: "listing-2",
		SellerID:  "seller-1",
		BuyerID:   "buyer-1",
	})
	require.NoError(t, err)
	require.NoError(t, f.conversations.Create(context.Background(), second))

	_, err = f.store.Append(context.Background(), "conv-2", "buyer-1", "about the other one")
	require.NoError(t, err)

	summaries, err := f.store.ListForParticipant(context.Background(), "buyer-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// the conversation with the message sorts first and carries it
	assert.Equal(t, domainchat.ConversationID("conv-2"), summaries[0].Conversation.ID)
	require.NotNil(t, summaries[0].Latest)
	assert.Equal(t, "about the other one", summaries[0].Latest.Body)
	assert.Nil(t, summaries[1].Latest)

	none, err := f.store.ListForParticipant(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConversationAccess(t *testing.T) {
	f := newStoreFixture(t)

	conversation, err := f.store.Conversation(context.Background(), "conv-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, f.conversation.ID, conversation.ID)

	_, err = f.store.Conversation(context.Background(), "conv-1", "stranger")
	assert.ErrorIs(t, err, domainchat.ErrForbidden)
}
