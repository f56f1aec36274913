package listings

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("listings: not found")
	ErrIDRequired     = errors.New("listings: id is required")
	ErrSellerRequired = errors.New("listings: seller is required")
	ErrTitleRequired  = errors.New("listings: title is required")
	ErrPriceNegative  = errors.New("listings: price must be non-negative")
	ErrInvalidStatus  = errors.New("listings: invalid status")
	ErrInvalidTransit = errors.New("listings: invalid status transition")
)

type ListingID string
type SellerID string

// Status is the sale lifecycle of a listing. Chat only cares whether the
// listing still accepts first contact and new messages, so reserved and
// sold collapse into a single state.
type Status string

const (
	StatusOpen           Status = "OPEN"
	StatusReservedOrSold Status = "RESERVED_OR_SOLD"
	StatusRemoved        Status = "REMOVED"
)

// AcceptsContact reports whether new conversations and messages are allowed.
func (s Status) AcceptsContact() bool {
	return s == StatusOpen
}

func ParseStatus(raw string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(StatusOpen):
		return StatusOpen, nil
	case string(StatusReservedOrSold):
		return StatusReservedOrSold, nil
	case string(StatusRemoved):
		return StatusRemoved, nil
	default:
		return "", ErrInvalidStatus
	}
}

type Listing struct {
	ID         ListingID
	Seller     SellerID
	Title      string
	Body       string
	PriceCents int64
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
}

type CreateListingParams struct {
	ID         ListingID
	Seller     SellerID
	Title      string
	Body       string
	PriceCents int64
	Now        time.Time
}

func NewListing(params CreateListingParams) (*Listing, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	seller := strings.TrimSpace(string(params.Seller))
	if seller == "" {
		return nil, ErrSellerRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if params.PriceCents < 0 {
		return nil, ErrPriceNegative
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Listing{
		ID:         ListingID(id),
		Seller:     SellerID(seller),
		Title:      title,
		Body:       strings.TrimSpace(params.Body),
		PriceCents: params.PriceCents,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// MarkReservedOrSold closes the listing for new contact once a trade is
// agreed or completed.
func (l *Listing) MarkReservedOrSold(now time.Time) error {
	if l.Status == StatusRemoved {
		return ErrInvalidTransit
	}
	l.Status = StatusReservedOrSold
	l.touch(now)
	return nil
}

// Reopen puts a reserved listing back on sale.
func (l *Listing) Reopen(now time.Time) error {
	if l.Status == StatusRemoved {
		return ErrInvalidTransit
	}
	l.Status = StatusOpen
	l.touch(now)
	return nil
}

// Remove withdraws the listing entirely. Removal is terminal.
func (l *Listing) Remove(now time.Time) error {
	l.Status = StatusRemoved
	l.touch(now)
	return nil
}

func (l *Listing) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	l.UpdatedAt = now.UTC()
}
