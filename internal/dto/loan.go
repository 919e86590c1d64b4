package dto

import "time"

// RefreshOverdueRequest optionally pins the sweep clock.
type RefreshOverdueRequest struct {
	AsOf *time.Time `json:"as_of"`
}

// RefreshOverdueResult reports how many loans the sweep moved to OVERDUE.
type RefreshOverdueResult struct {
	Reclassified int64     `json:"reclassified"`
	AsOf         time.Time `json:"as_of"`
}
