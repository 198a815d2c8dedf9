package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/identity"
	"github.com/studyshare/studyshare-api/internal/metrics"
	"github.com/studyshare/studyshare-api/internal/objectstore"
	"github.com/studyshare/studyshare-api/internal/repository"
)

// DefaultMaxUploadBytes caps uploaded files when no limit is configured.
const DefaultMaxUploadBytes int64 = 50 << 20

const cleanupTimeout = 30 * time.Second

// NoteStore is the note persistence the service needs.
type NoteStore interface {
	Create(ctx context.Context, params repository.NoteCreateParams) (domain.Note, error)
	GetByID(ctx context.Context, id string) (domain.Note, error)
	List(ctx context.Context, filters repository.NoteListFilters) (repository.NoteListResult, error)
	ListByUploader(ctx context.Context, uploaderID string) ([]domain.Note, error)
	IncrementDownloads(ctx context.Context, id string) (int64, error)
	DeleteOwned(ctx context.Context, id, ownerID string, release func(domain.Note) error) (domain.Note, error)
	SuggestSubjects(ctx context.Context, fragment string, limit int) ([]string, error)
	SuggestTitles(ctx context.Context, fragment string, limit int) ([]string, error)
	PopularSubjects(ctx context.Context, limit int) ([]domain.SubjectCount, error)
	MostDownloaded(ctx context.Context, limit int) ([]domain.NoteSummary, error)
}

// RatingStore is the rating persistence the service needs.
type RatingStore interface {
	Submit(ctx context.Context, params repository.RatingSubmitParams) (repository.RatingResult, error)
	Delete(ctx context.Context, noteID, userID string) (domain.RatingAggregate, error)
}

// ProfileStore is the profile persistence the service needs.
type ProfileStore interface {
	Create(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	Get(ctx context.Context, userID string) (domain.UserProfile, error)
	Update(ctx context.Context, userID string, params repository.ProfileUpdateParams) (domain.UserProfile, error)
	Dashboard(ctx context.Context, userID string) (domain.Dashboard, error)
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Notes          NoteStore
	Ratings        RatingStore
	Profiles       ProfileStore
	Objects        objectstore.ObjectStore
	Accounts       identity.Provider
	Metrics        *metrics.Collector
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// Service implements the note catalog, rating and account use cases.
type Service struct {
	notes          NoteStore
	ratings        RatingStore
	profiles       ProfileStore
	objects        objectstore.ObjectStore
	accounts       identity.Provider
	metrics        *metrics.Collector
	logger         *zap.Logger
	maxUploadBytes int64
}

// New constructs a Service.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NewCollector("studyshare")
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Service{
		notes:          deps.Notes,
		ratings:        deps.Ratings,
		profiles:       deps.Profiles,
		objects:        deps.Objects,
		accounts:       deps.Accounts,
		metrics:        collector,
		logger:         logger.Named("catalog"),
		maxUploadBytes: maxUpload,
	}
}

// MaxUploadBytes is the largest file Upload accepts.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}
