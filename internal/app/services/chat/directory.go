package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// Directory resolves a (listing, buyer) pair to exactly one conversation,
// creating it on first contact. Creation is the only mutation and the
// lookup key makes retries idempotent.
type Directory struct {
	Listings      domainlistings.Repository
	Conversations domainchat.ConversationRepository
	Events        EventPublisher
	Logger        *slog.Logger
}

// ResolveOrCreate returns the conversation between requester and the
// listing's seller, creating it when absent. The requester is assumed to
// be a prospective buyer.
func (d *Directory) ResolveOrCreate(ctx context.Context, listingID domainlistings.ListingID, requesterID domainuser.ID) (*domainchat.Conversation, error) {
	if err := d.ensureDependencies(); err != nil {
		return nil, err
	}
	listing, err := d.Listings.ByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.Status.AcceptsContact() {
		return nil, domainchat.ErrListingUnavailable
	}
	if string(listing.Seller) == string(requesterID) {
		return nil, domainchat.ErrSelfConversation
	}

	conversation, err := d.Conversations.ByListingAndBuyer(ctx, listingID, requesterID)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, domainchat.ErrConversationNotFound) {
		return nil, err
	}

	conversation, err = domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        domainchat.ConversationID(uuid.NewString()),
		ListingID: listingID,
		SellerID:  domainuser.ID(listing.Seller),
		BuyerID:   requesterID,
		Now:       time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if err := d.Conversations.Create(ctx, conversation); err != nil {
		// Lost a race with an identical request; the stored one wins.
		if errors.Is(err, domainchat.ErrConversationExists) {
			return d.Conversations.ByListingAndBuyer(ctx, listingID, requesterID)
		}
		return nil, err
	}
	if d.Logger != nil {
		d.Logger.Info("conversation created",
			"conversation_id", conversation.ID,
			"listing_id", listingID,
			"buyer_id", requesterID,
			"seller_id", conversation.SellerID,
		)
	}
	d.publishCreated(ctx, conversation)
	return conversation, nil
}

func (d *Directory) publishCreated(ctx context.Context, conversation *domainchat.Conversation) {
	if d.Events == nil {
		return
	}
	payload, err := encodeConversationCreated(conversation)
	if err != nil {
		return
	}
	if err := d.Events.Publish(ctx, TopicConversationCreated, string(conversation.ID), payload, nil); err != nil && d.Logger != nil {
		d.Logger.Warn("conversation event publish failed", "error", err, "conversation_id", conversation.ID)
	}
}

func (d *Directory) ensureDependencies() error {
	switch {
	case d.Listings == nil:
		return errors.New("chat: listing repository required")
	case d.Conversations == nil:
		return errors.New("chat: conversation repository required")
	default:
		return nil
	}
}
