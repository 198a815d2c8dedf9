package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/repository"
)

// UploadInput is the note metadata submitted with a file.
type UploadInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Subject     string   `json:"subject" validate:"required,max=100"`
	Semester    *int     `json:"semester" validate:"omitempty,min=1,max=12"`
	University  string   `json:"university" validate:"max=200"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=50"`
}

// FileInput is the uploaded file.
type FileInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload stores the file and then records the note. When recording fails the
// stored object is removed before the error is returned.
func (s *Service) Upload(ctx context.Context, uploaderID string, in UploadInput, file *FileInput) (domain.Note, error) {
	if file == nil || file.Body == nil || file.Size <= 0 {
		return domain.Note{}, invalid("file", "File is required")
	}
	if file.Size > s.maxUploadBytes {
		return domain.Note{}, invalid("file", fmt.Sprintf("File exceeds the %d byte upload limit", s.maxUploadBytes))
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	in.University = strings.TrimSpace(in.University)
	if in.Title == "" || in.Subject == "" {
		return domain.Note{}, invalid("title", "Title and subject are required")
	}
	if err := validateStruct(in); err != nil {
		return domain.Note{}, err
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	stored, err := s.objects.Put(ctx, file.Filename, file.Body, file.Size, contentType)
	if err != nil {
		return domain.Note{}, fmt.Errorf("store file: %w", err)
	}

	note, err := s.notes.Create(ctx, repository.NoteCreateParams{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Subject:     in.Subject,
		Semester:    in.Semester,
		University:  in.University,
		Tags:        in.Tags,
		File: domain.FileRef{
			URL:              stored.URL,
			MimeType:         contentType,
			Size:             file.Size,
			OriginalFilename: file.Filename,
			StorageKey:       stored.Key,
		},
		UploaderID: uploaderID,
	})
	if err != nil {
		s.removeOrphan(ctx, stored.Key)
		return domain.Note{}, fmt.Errorf("save note metadata: %w", err)
	}

	s.metrics.NotesUploaded.Inc()
	s.logger.Info("note uploaded",
		zap.String("note_id", note.ID),
		zap.String("uploader_id", uploaderID),
		zap.Int64("size", file.Size),
	)
	return note, nil
}

func (s *Service) removeOrphan(ctx context.Context, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.objects.Delete(cleanupCtx, key); err != nil {
		s.metrics.OrphanCleanups.WithLabelValues("failed").Inc()
		s.logger.Error("orphaned object left in storage", zap.String("key", key), zap.Error(err))
		return
	}
	s.metrics.OrphanCleanups.WithLabelValues("removed").Inc()
	s.logger.Warn("removed stored object after failed insert", zap.String("key", key))
}

// DeleteNote removes the caller's note together with its ratings and stored
// file. A storage failure leaves everything in place.
func (s *Service) DeleteNote(ctx context.Context, noteID, userID string) error {
	var removed *domain.Note
	_, err := s.notes.DeleteOwned(ctx, noteID, userID, func(n domain.Note) error {
		if n.File.StorageKey == "" {
			return nil
		}
		if err := s.objects.Delete(ctx, n.File.StorageKey); err != nil {
			return fmt.Errorf("delete stored file: %w", err)
		}
		removed = &n
		return nil
	})
	if err != nil {
		if removed != nil {
			// The file is gone but the row survived; file_url now dangles.
			s.logger.Error("note kept after its stored file was removed",
				zap.String("note_id", removed.ID),
				zap.String("storage_key", removed.File.StorageKey),
				zap.String("file_url", removed.File.URL),
				zap.Error(err),
			)
		}
		return err
	}
	s.metrics.NotesDeleted.Inc()
	s.logger.Info("note deleted", zap.String("note_id", noteID), zap.String("user_id", userID))
	return nil
}

// Get returns one note with uploader info.
func (s *Service) Get(ctx context.Context, noteID string) (domain.Note, error) {
	return s.notes.GetByID(ctx, noteID)
}

// List returns a filtered, sorted page of notes.
func (s *Service) List(ctx context.Context, filters repository.NoteListFilters) (repository.NoteListResult, error) {
	return s.notes.List(ctx, filters)
}

// Search is List with a mandatory search term.
func (s *Service) Search(ctx context.Context, filters repository.NoteListFilters) (repository.NoteListResult, error) {
	if filters.Search == nil || strings.TrimSpace(*filters.Search) == "" {
		return repository.NoteListResult{}, invalid("q", "Search query is required")
	}
	return s.notes.List(ctx, filters)
}

// RecordDownload increments the note's download counter.
func (s *Service) RecordDownload(ctx context.Context, noteID string) (int64, error) {
	n, err := s.notes.IncrementDownloads(ctx, noteID)
	if err != nil {
		return 0, err
	}
	s.metrics.Downloads.Inc()
	return n, nil
}

// UserUploads lists the caller's notes, newest first.
func (s *Service) UserUploads(ctx context.Context, userID string) ([]domain.Note, error) {
	return s.notes.ListByUploader(ctx, userID)
}

// Rate records the caller's rating and returns the note's new aggregate.
func (s *Service) Rate(ctx context.Context, noteID, userID string, value int) (repository.RatingResult, error) {
	if !domain.ValidRatingValue(value) {
		return repository.RatingResult{}, invalid("rating", "Rating must be between 1 and 5")
	}
	res, err := s.ratings.Submit(ctx, repository.RatingSubmitParams{NoteID: noteID, UserID: userID, Value: value})
	if err != nil {
		return repository.RatingResult{}, err
	}
	s.metrics.RatingsSubmitted.Inc()
	return res, nil
}

// DeleteRating withdraws the caller's rating.
func (s *Service) DeleteRating(ctx context.Context, noteID, userID string) (domain.RatingAggregate, error) {
	agg, err := s.ratings.Delete(ctx, noteID, userID)
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	s.metrics.RatingsDeleted.Inc()
	return agg, nil
}

// IsNotFound reports whether err means the addressed entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
