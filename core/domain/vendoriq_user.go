// Package domain defines the core entities of the invoice ingestion system.
package domain

import "time"

// User identifies one account. Google tokens are nullable: an empty
// refresh token means "not connected".
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string

	GoogleAccessToken  string
	GoogleRefreshToken string

	// LastSyncedAt is the sync watermark gating incremental vs. full
	// re-fetch. Nil means the user has never synced.
	LastSyncedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsConnected reports whether the user has a stored Google refresh credential.
func (u *User) IsConnected() bool {
	return u != nil && u.GoogleRefreshToken != ""
}
