package domain

import "time"

// UserProfile is a registered user's academic identity, keyed by the identity store's user id.
type UserProfile struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	University string
	Course     string
	Semester   *int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity is the authenticated caller as reported by the identity store.
type Identity struct {
	UserID string
	Email  string
}

// Dashboard aggregates a user's activity.
type Dashboard struct {
	UploadedNotes  int64
	TotalDownloads int64
	RatingsGiven   int64
	RecentUploads  []NoteSummary
}
