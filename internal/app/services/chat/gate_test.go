package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	"marketchat/internal/infra/storage/memory"
)

func newGate(t *testing.T) (*LifecycleGate, *memory.ListingRepository, *memory.ChatStore) {
	t.Helper()
	listings := memory.NewListingRepository()
	conversations := memory.NewChatStore()
	return &LifecycleGate{Conversations: conversations, Listings: listings}, listings, conversations
}

func seedGateConversation(t *testing.T, conversations *memory.ChatStore, listingID string) {
	t.Helper()
	conversation, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        "conv-1",
		ListingID: domainlistings.ListingID(listingID),
		SellerID:  "seller-1",
		BuyerID:   "buyer-1",
	})
	require.NoError(t, err)
	require.NoError(t, conversations.Create(context.Background(), conversation))
}

func TestGateReflectsCurrentListingStatus(t *testing.T) {
	gate, listings, conversations := newGate(t)
	listing := seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusOpen)
	seedGateConversation(t, conversations, "listing-1")

	open, err := gate.CanAcceptMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, open)

	// the gate re-reads the listing, so a status change applies immediately
	require.NoError(t, listing.MarkReservedOrSold(time.Now()))
	require.NoError(t, listings.Save(context.Background(), listing))

	open, err = gate.CanAcceptMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.False(t, open)

	status, err := gate.CurrentListingState(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domainlistings.StatusReservedOrSold, status)
}

func TestGateReopenedListingAcceptsAgain(t *testing.T) {
	gate, listings, conversations := newGate(t)
	listing := seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusReservedOrSold)
	seedGateConversation(t, conversations, "listing-1")

	open, err := gate.CanAcceptMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	require.False(t, open)

	require.NoError(t, listing.Reopen(time.Now()))
	require.NoError(t, listings.Save(context.Background(), listing))

	open, err = gate.CanAcceptMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, open)
}

func TestGatePurgedListingReadsAsRemoved(t *testing.T) {
	gate, _, conversations := newGate(t)
	// conversation outlives the listing: no row exists at all
	seedGateConversation(t, conversations, "listing-gone")

	status, err := gate.CurrentListingState(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domainlistings.StatusRemoved, status)

	open, err := gate.CanAcceptMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestGateEnsureOpen(t *testing.T) {
	gate, listings, conversations := newGate(t)
	listing := seedListing(t, listings, "listing-1", "seller-1", domainlistings.StatusOpen)
	seedGateConversation(t, conversations, "listing-1")

	assert.NoError(t, gate.EnsureOpen(context.Background(), "conv-1"))

	require.NoError(t, listing.MarkReservedOrSold(time.Now()))
	require.NoError(t, listings.Save(context.Background(), listing))

	assert.ErrorIs(t, gate.EnsureOpen(context.Background(), "conv-1"), domainchat.ErrConversationClosed)
}

func TestGateUnknownConversation(t *testing.T) {
	gate, _, _ := newGate(t)

	_, err := gate.CurrentListingState(context.Background(), "no-such-conv")
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}
