package domain

import "time"

// FileRef points at the stored binary behind a note.
type FileRef struct {
	URL              string
	MimeType         string
	Size             int64
	OriginalFilename string
	StorageKey       string
}

// Uploader is the display subset of a user profile joined onto notes.
type Uploader struct {
	FirstName  string
	LastName   string
	University string
	Course     string
}

// Note represents a shared study-material record.
type Note struct {
	ID          string
	Title       string
	Description string
	Subject     string
	Semester    *int
	University  string
	Tags        []string
	File        FileRef
	UploaderID  string
	Uploader    *Uploader
	UploadDate  time.Time
	Downloads   int64
	Rating      float64
	RatingCount int64
}

// NoteSummary is the trimmed projection used by dashboards and popularity lists.
type NoteSummary struct {
	ID         string
	Title      string
	Subject    string
	UploadDate time.Time
	Downloads  int64
	Rating     float64
}

// SubjectCount reports how many notes share a subject.
type SubjectCount struct {
	Subject string
	Count   int64
}
