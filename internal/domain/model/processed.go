package model

import "time"

// ProcessedRecord marks a follower as already handled for an account owner.
// At most one record exists per (FollowerID, AccountOwner).
type ProcessedRecord struct {
	FollowerID   string    `json:"follower_id"   db:"follower_id"`
	AccountOwner string    `json:"account_owner" db:"account_owner"`
	ProcessedAt  time.Time `json:"processed_at"  db:"processed_at"`
}
