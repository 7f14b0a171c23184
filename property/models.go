package property

import "time"

// Status is the listing lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSold      Status = "sold"
	StatusOffMarket Status = "off-market"
)

// Property is a listing. Seller submissions start pending with no agent or
// office; assignment by staff sets both and activates the listing.
type Property struct {
	ID              string
	Title           string
	Description     *string
	Price           int64
	Status          Status
	SellerAccountID *string
	ListingAgentID  *string
	ListingOfficeID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
