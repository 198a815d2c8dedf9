package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyshare/studyshare-api/internal/domain"
)

// ProfilesRepository persists user profiles and per-user activity views.
type ProfilesRepository struct {
	pool *pgxpool.Pool
}

const profileColumns = `id, email, first_name, last_name, university, course, semester, created_at, updated_at`

// ProfileUpdateParams holds the owner-editable profile fields.
type ProfileUpdateParams struct {
	FirstName  string
	LastName   string
	University string
	Course     string
	Semester   *int
}

const recentUploadsLimit = 5

// Create inserts a profile for a freshly registered identity. Re-registering
// the same id refreshes the stored fields.
func (r *ProfilesRepository) Create(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	query := `
        INSERT INTO user_profiles (id, email, first_name, last_name, university, course, semester)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO UPDATE
        SET email = EXCLUDED.email,
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            university = EXCLUDED.university,
            course = EXCLUDED.course,
            semester = EXCLUDED.semester,
            updated_at = now()
        RETURNING ` + profileColumns

	row := r.pool.QueryRow(ctx, query, profile.ID, profile.Email, profile.FirstName, profile.LastName,
		profile.University, profile.Course, profile.Semester)
	created, err := scanProfile(row)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("insert profile: %w", err)
	}
	return created, nil
}

// Get fetches a profile by user id.
func (r *ProfilesRepository) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	if !validID(userID) {
		return domain.UserProfile{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`, userID)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, ErrNotFound
		}
		return domain.UserProfile{}, err
	}
	return profile, nil
}

// Update overwrites the editable fields of an existing profile.
func (r *ProfilesRepository) Update(ctx context.Context, userID string, params ProfileUpdateParams) (domain.UserProfile, error) {
	if !validID(userID) {
		return domain.UserProfile{}, ErrNotFound
	}
	query := `
        UPDATE user_profiles
        SET first_name = $2,
            last_name = $3,
            university = $4,
            course = $5,
            semester = $6,
            updated_at = now()
        WHERE id = $1
        RETURNING ` + profileColumns

	row := r.pool.QueryRow(ctx, query, userID, params.FirstName, params.LastName, params.University, params.Course, params.Semester)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, ErrNotFound
		}
		return domain.UserProfile{}, err
	}
	return profile, nil
}

// Dashboard summarizes a user's uploads and rating activity.
func (r *ProfilesRepository) Dashboard(ctx context.Context, userID string) (domain.Dashboard, error) {
	dash := domain.Dashboard{RecentUploads: []domain.NoteSummary{}}
	if !validID(userID) {
		return dash, nil
	}

	const stats = `
        SELECT
            (SELECT COUNT(*) FROM notes WHERE uploader_id = $1)::int8,
            (SELECT COALESCE(SUM(downloads), 0) FROM notes WHERE uploader_id = $1)::int8,
            (SELECT COUNT(*) FROM note_ratings WHERE user_id = $1)::int8
    `
	if err := r.pool.QueryRow(ctx, stats, userID).Scan(&dash.UploadedNotes, &dash.TotalDownloads, &dash.RatingsGiven); err != nil {
		return domain.Dashboard{}, fmt.Errorf("dashboard stats: %w", err)
	}

	const recent = `
        SELECT id, title, subject, upload_date, downloads, rating
        FROM notes
        WHERE uploader_id = $1
        ORDER BY upload_date DESC, id DESC
        LIMIT $2
    `
	uploads, err := querySummaries(ctx, r.pool, recent, userID, recentUploadsLimit)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("recent uploads: %w", err)
	}
	dash.RecentUploads = uploads
	return dash, nil
}

func scanProfile(row pgx.Row) (domain.UserProfile, error) {
	var p domain.UserProfile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FirstName,
		&p.LastName,
		&p.University,
		&p.Course,
		&p.Semester,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}
