package memory

import (
	"context"
	"sync"

	domainlistings "marketchat/internal/domain/listings"
)

// ListingRepository is an in-memory implementation for the dev storage
// mode and tests.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	return cloneListing(listing), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if listing == nil {
		return domainlistings.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = cloneListing(listing)
	return nil
}

func cloneListing(l *domainlistings.Listing) *domainlistings.Listing {
	if l == nil {
		return nil
	}
	copyListing := *l
	return &copyListing
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
