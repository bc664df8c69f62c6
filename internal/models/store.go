package models

import "time"

// Store represents one point-of-sale installation being watched. Stores are
// fully independent tenants; nothing in the pipeline locks across them.
type Store struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Timezone    string    `json:"timezone"` // IANA name, e.g. "America/Bogota"
	OwnerUserID string    `json:"owner_user_id"`
	APIKeyHash  string    `json:"-"` // bcrypt hash of the terminal ingest key
	CreatedAt   time.Time `json:"created_at"`
}

// Location resolves the store's timezone, falling back to UTC when the stored
// name is missing or invalid. Temporal rules and quiet hours anchor to this.
func (s *Store) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
