package search

import "time"

// MaxPerAccount caps saved searches per account.
const MaxPerAccount = 10

// Criteria is the filter set a saved search re-runs.
type Criteria struct {
	PropertyTypes []string
	Locations     []string
	PriceMin      int64
	PriceMax      int64
}

// SavedSearch is an account-owned stored query with an alert preference. It
// has an independent lifecycle; the only bound is the per-account capacity.
type SavedSearch struct {
	ID            string
	AccountID     string
	Name          string
	Criteria      Criteria
	AlertsEnabled bool
	CreatedAt     time.Time
}
