package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/storage/memory"
)

type publishedEvent struct {
	Topic   string
	Key     string
	Payload []byte
}

// publisherRecorder captures events for assertions in place of a broker.
type publisherRecorder struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *publisherRecorder) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (r *publisherRecorder) byTopic(topic string) []publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]publishedEvent, 0)
	for _, event := range r.events {
		if event.Topic == topic {
			out = append(out, event)
		}
	}
	return out
}

func seedListing(t *testing.T, repo *memory.ListingRepository, id, seller string, status domainlistings.Status) *domainlistings.Listing {
	t.Helper()
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:         domainlistings.ListingID(id),
		Seller:     domainlistings.SellerID(seller),
		Title:      "Vintage lamp",
		PriceCents: 4_500,
		Now:        time.Now(),
	})
	require.NoError(t, err)
	listing.Status = status
	require.NoError(t, repo.Save(context.Background(), listing))
	return listing
}

func newDirectory(t *testing.T) (*Directory, *memory.ListingRepository, *memory.ChatStore, *publisherRecorder) {
	t.Helper()
	listings := memory.NewListingRepository()
	conversations := memory.NewChatStore()
	events := &publisherRecorder{}
	directory := &Directory{Listings: listings, Conversations: conversations, Events: events}
	return directory, listings, conversations, events
}

func TestResolveOrCreateFirstContact(t *testing.T) {
	directory, listings, _, events := newDirectory(t)
	seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusOpen)

	conversation, err := directory.ResolveOrCreate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.NotEmpty(t, conversation.ID)
	assert.Equal(t, domainuser.ID("seller-1"), conversation.SellerID)
	assert.Equal(t, domainuser.ID("buyer-1"), conversation.BuyerID)

	created := events.byTopic(TopicConversationCreated)
	require.Len(t, created, 1)
	assert.Equal(t, string(conversation.ID), created[0].Key)
}

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	directory, listings, _, events := newDirectory(t)
	seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusOpen)

	first, err := directory.ResolveOrCreate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	second, err := directory.ResolveOrCreate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// only the first call creates, so only one event
	assert.Len(t, events.byTopic(TopicConversationCreated), 1)
}

func TestResolveOrCreateDistinctBuyersGetDistinctConversations(t *testing.T) {
	directory, listings, _, _ := newDirectory(t)
	seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusOpen)

	first, err := directory.ResolveOrCreate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	second, err := directory.ResolveOrCreate(context.Background(), "listing-1", "buyer-2")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestResolveOrCreateRejectsSellersOwnListing(t *testing.T) {
	directory, listings, _, _ := newDirectory(t)
	seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusOpen)

	_, err := directory.ResolveOrCreate(context.Background(), "listing-1", "seller-1")
	assert.ErrorIs(t, err, domainchat.ErrSelfConversation)
}

func TestResolveOrCreateRejectsClosedListing(t *testing.T) {
	directory, listings, _, _ := newDirectory(t)
	seedListing(t, listings, "listing-sold", "seller-1", domainlistings.StatusReservedOrSold)
	seedListing(t, listings, "listing-gone", "seller-1", domainlistings.StatusRemoved)

	_, err := directory.ResolveOrCreate(context.Background(), "listing-sold", "buyer-1")
	assert.ErrorIs(t, err, domainchat.ErrListingUnavailable)

	_, err = directory.ResolveOrCreate(context.Background(), "listing-gone", "buyer-1")
	assert.ErrorIs(t, err, domainchat.ErrListingUnavailable)
}

func TestResolveOrCreateUnknownListing(t *testing.T) {
	directory, _, _, _ := newDirectory(t)

	_, err := directory.ResolveOrCreate(context.Background(), "no-such-listing", "buyer-1")
	assert.ErrorIs(t, err, domainlistings.ErrNotFound)
}

// racingConversations simulates losing the create race: the first Create
// reports a duplicate after a concurrent request stored the conversation.
type racingConversations struct {
	domainchat.ConversationRepository
	winner *domainchat.Conversation
	misses int
}

func (r *racingConversations) ByListingAndBuyer(ctx context.Context, listingID domainlistings.ListingID, buyerID domainuser.ID) (*domainchat.Conversation, error) {
	if r.misses == 0 {
		r.misses++
		return nil, domainchat.ErrConversationNotFound
	}
	return r.winner, nil
}

func (r *racingConversations) Create(ctx context.Context, conversation *domainchat.Conversation) error {
	return domainchat.ErrConversationExists
}

func TestResolveOrCreateLostRaceReturnsStoredConversation(t *testing.T) {
	listings := memory.NewListingRepository()
	seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusOpen)

	winner := &domainchat.Conversation{
		ID:        "conv-winner",
		ListingID: "listing-1",
		SellerID:  "seller-1",
		BuyerID:   "buyer-1",
		CreatedAt: time.Now().UTC(),
	}
	directory := &Directory{
		Listings:      listings,
		Conversations: &racingConversations{winner: winner},
	}

	conversation, err := directory.ResolveOrCreate(context.Background(), "listing-1", "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, conversation.ID)
}
