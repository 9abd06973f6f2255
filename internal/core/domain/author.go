package domain

import "time"

// TrackedAuthor is an external author whose timeline is harvested.
// Rows are managed by an external surface; the coordinator only advances
// LastFetchedAt, and only after a non-error fetch.
type TrackedAuthor struct {
	ID            int64
	Username      string
	DisplayName   string
	Priority      int
	Active        bool
	LastFetchedAt *time.Time
	Notes         string
}

// AuthorUpdate is a partial update for a tracked author. Nil fields are
// left untouched.
type AuthorUpdate struct {
	DisplayName *string
	Priority    *int
	Active      *bool
	Notes       *string
}

// Empty reports whether the update would change nothing.
func (u AuthorUpdate) Empty() bool {
	return u.DisplayName == nil && u.Priority == nil && u.Active == nil && u.Notes == nil
}
