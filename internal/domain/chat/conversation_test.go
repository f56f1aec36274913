package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

func TestNewConversation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	conversation, err := NewConversation(CreateConversationParams{
		ID:        "conv-1",
		ListingID: "listing-1",
		SellerID:  "seller-1",
		BuyerID:   "buyer-1",
		Now:       now,
	})
	require.NoError(t, err)
	assert.Equal(t, ConversationID("conv-1"), conversation.ID)
	assert.Equal(t, listings.ListingID("listing-1"), conversation.ListingID)
	assert.Equal(t, now, conversation.CreatedAt)
	assert.True(t, conversation.LastMessageAt.IsZero())
}

func TestNewConversationValidation(t *testing.T) {
	cases := []struct {
		name    string
		params  CreateConversationParams
		wantErr error
	}{
		{
			name:    "missing id",
			params:  CreateConversationParams{ListingID: "l", SellerID: "s", BuyerID: "b"},
			wantErr: ErrIDRequired,
		},
		{
			name:    "missing buyer",
			params:  CreateConversationParams{ID: "c", ListingID: "l", SellerID: "s"},
			wantErr: ErrParticipantsRequired,
		},
		{
			name:    "missing seller",
			params:  CreateConversationParams{ID: "c", ListingID: "l", BuyerID: "b"},
			wantErr: ErrParticipantsRequired,
		},
		{
			name:    "seller talking to themselves",
			params:  CreateConversationParams{ID: "c", ListingID: "l", SellerID: "u", BuyerID: "u"},
			wantErr: ErrSelfConversation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConversation(tc.params)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestConversationParticipants(t *testing.T) {
	conversation := &Conversation{SellerID: "seller", BuyerID: "buyer"}

	assert.True(t, conversation.Participant("seller"))
	assert.True(t, conversation.Participant("buyer"))
	assert.False(t, conversation.Participant("stranger"))
	assert.False(t, conversation.Participant(""))

	assert.Equal(t, user.ID("buyer"), conversation.Counterpart("seller"))
	assert.Equal(t, user.ID("seller"), conversation.Counterpart("buyer"))
	assert.Equal(t, user.ID(""), conversation.Counterpart("stranger"))
}

func TestConversationLastActivity(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	conversation := &Conversation{CreatedAt: created}
	assert.Equal(t, created, conversation.LastActivity())

	sent := created.Add(2 * time.Hour)
	conversation.LastMessageAt = sent
	assert.Equal(t, sent, conversation.LastActivity())
}
