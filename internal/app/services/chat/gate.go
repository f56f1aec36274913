package chat

import (
	"context"
	"errors"

	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
)

// LifecycleGate decides whether a conversation accepts new messages, as a
// pure function of the referenced listing's current status. The listing is
// re-read on every call: the gate exists to reflect the latest truth, and
// sends must stop the instant a listing is marked reserved, sold, or
// removed. A conversation whose listing has been purged stays readable but
// closed.
type LifecycleGate struct {
	Conversations domainchat.ConversationRepository
	Listings      domainlistings.Repository
}

// CurrentListingState returns the present status of the conversation's
// listing. A purged listing reads as removed.
func (g *LifecycleGate) CurrentListingState(ctx context.Context, conversationID domainchat.ConversationID) (domainlistings.Status, error) {
	if err := g.ensureDependencies(); err != nil {
		return "", err
	}
	conversation, err := g.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return "", err
	}
	listing, err := g.Listings.ByID(ctx, conversation.ListingID)
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			return domainlistings.StatusRemoved, nil
		}
		return "", err
	}
	return listing.Status, nil
}

// CanAcceptMessages reports whether a send on the conversation is allowed
// right now.
func (g *LifecycleGate) CanAcceptMessages(ctx context.Context, conversationID domainchat.ConversationID) (bool, error) {
	status, err := g.CurrentListingState(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return status.AcceptsContact(), nil
}

// EnsureOpen returns ErrConversationClosed when the conversation no longer
// accepts messages.
func (g *LifecycleGate) EnsureOpen(ctx context.Context, conversationID domainchat.ConversationID) error {
	open, err := g.CanAcceptMessages(ctx, conversationID)
	if err != nil {
		return err
	}
	if !open {
		return domainchat.ErrConversationClosed
	}
	return nil
}

func (g *LifecycleGate) ensureDependencies() error {
	switch {
	case g.Conversations == nil:
		return errors.New("chat: conversation repository required")
	case g.Listings == nil:
		return errors.New("chat: listing repository required")
	default:
		return nil
	}
}
