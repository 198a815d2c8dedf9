package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyshare/studyshare-api/internal/domain"
)

// NotesRepository provides persistence helpers for note entities.
type NotesRepository struct {
	pool *pgxpool.Pool
}

const noteColumns = `
    n.id,
    n.title,
    n.description,
    n.subject,
    n.semester,
    n.university,
    n.tags,
    n.file_url,
    n.file_type,
    n.file_size,
    n.original_filename,
    n.storage_key,
    n.uploader_id,
    n.upload_date,
    n.downloads,
    n.rating,
    n.rating_count,
    p.first_name,
    p.last_name,
    p.university,
    p.course
`

const noteFrom = ` FROM notes n LEFT JOIN user_profiles p ON p.id = n.uploader_id`

const (
	DefaultPage  = 1
	DefaultLimit = 12
	MaxLimit     = 100
)

// SortFields maps accepted sortBy values to their columns.
var SortFields = map[string]string{
	"upload_date":  "n.upload_date",
	"downloads":    "n.downloads",
	"rating":       "n.rating",
	"rating_count": "n.rating_count",
	"title":        "n.title",
	"subject":      "n.subject",
	"semester":     "n.semester",
}

// NoteCreateParams bundles the fields required to create a note.
type NoteCreateParams struct {
	ID          string
	Title       string
	Description string
	Subject     string
	Semester    *int
	University  string
	Tags        []string
	File        domain.FileRef
	UploaderID  string
	UploadDate  time.Time
}

// NoteListFilters encapsulates search, sort and pagination options.
type NoteListFilters struct {
	Search     *string
	Subject    *string
	Semester   *int
	University *string
	FileType   *string
	SortBy     string
	Ascending  bool
	Page       int
	Limit      int
}

// NoteListResult returns one page plus pagination metadata.
type NoteListResult struct {
	Items []domain.Note
	Page  int
	Limit int
	Total int64
	Pages int64
}

// Create inserts a new note row and returns the stored entity.
func (r *NotesRepository) Create(ctx context.Context, params NoteCreateParams) (domain.Note, error) {
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	uploadDate := params.UploadDate
	if uploadDate.IsZero() {
		uploadDate = time.Now().UTC()
	}

	const insert = `
        INSERT INTO notes (id, title, description, subject, semester, university, tags,
                           file_url, file_type, file_size, original_filename, storage_key,
                           uploader_id, upload_date, downloads, rating, rating_count)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,0,0,0)
    `
	_, err := r.pool.Exec(ctx, insert,
		params.ID, params.Title, params.Description, params.Subject, params.Semester,
		params.University, tags, params.File.URL, params.File.MimeType, params.File.Size,
		params.File.OriginalFilename, params.File.StorageKey, params.UploaderID, uploadDate,
	)
	if err != nil {
		return domain.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return r.GetByID(ctx, params.ID)
}

// GetByID fetches a note with its uploader info.
func (r *NotesRepository) GetByID(ctx context.Context, id string) (domain.Note, error) {
	if !validID(id) {
		return domain.Note{}, ErrNotFound
	}
	query := "SELECT " + noteColumns + noteFrom + " WHERE n.id = $1"
	note, err := scanNote(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Note{}, ErrNotFound
		}
		return domain.Note{}, err
	}
	return note, nil
}

// List returns one page of notes matching the provided filters.
func (r *NotesRepository) List(ctx context.Context, filters NoteListFilters) (NoteListResult, error) {
	if filters.Page <= 0 {
		filters.Page = DefaultPage
	}
	if filters.Limit <= 0 {
		filters.Limit = DefaultLimit
	} else if filters.Limit > MaxLimit {
		filters.Limit = MaxLimit
	}
	sortColumn, ok := SortFields[filters.SortBy]
	if !ok {
		sortColumn = SortFields["upload_date"]
	}
	direction := "DESC"
	if filters.Ascending {
		direction = "ASC"
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Search != nil && strings.TrimSpace(*filters.Search) != "" {
		term := strings.TrimSpace(*filters.Search)
		pattern := arg(likePattern(term))
		exact := arg(term)
		where = append(where, fmt.Sprintf(
			"(n.title ILIKE %s OR n.description ILIKE %s OR EXISTS (SELECT 1 FROM unnest(n.tags) AS t(tag) WHERE lower(t.tag) = lower(%s)))",
			pattern, pattern, exact))
	}
	if filters.Subject != nil && strings.TrimSpace(*filters.Subject) != "" {
		where = append(where, fmt.Sprintf("n.subject ILIKE %s", arg(likePattern(strings.TrimSpace(*filters.Subject)))))
	}
	if filters.Semester != nil {
		where = append(where, fmt.Sprintf("n.semester = %s", arg(*filters.Semester)))
	}
	if filters.University != nil && strings.TrimSpace(*filters.University) != "" {
		where = append(where, fmt.Sprintf("n.university ILIKE %s", arg(likePattern(strings.TrimSpace(*filters.University)))))
	}
	if filters.FileType != nil && strings.TrimSpace(*filters.FileType) != "" {
		where = append(where, fmt.Sprintf("n.file_type ILIKE %s", arg(likePattern(strings.TrimSpace(*filters.FileType)))))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notes n"+whereClause, args...).Scan(&total); err != nil {
		return NoteListResult{}, fmt.Errorf("count notes: %w", err)
	}

	offset := (filters.Page - 1) * filters.Limit

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(noteColumns)
	queryBuilder.WriteString(noteFrom)
	queryBuilder.WriteString(whereClause)
	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY %s %s NULLS LAST, n.id %s", sortColumn, direction, direction))
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", filters.Limit, offset))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return NoteListResult{}, fmt.Errorf("list notes: %w", err)
	}
	items, err := collectNotes(rows)
	if err != nil {
		return NoteListResult{}, err
	}

	return NoteListResult{
		Items: items,
		Page:  filters.Page,
		Limit: filters.Limit,
		Total: total,
		Pages: PageCount(total, filters.Limit),
	}, nil
}

// PageCount returns ceil(total/limit).
func PageCount(total int64, limit int) int64 {
	if limit <= 0 || total <= 0 {
		return 0
	}
	l := int64(limit)
	return (total + l - 1) / l
}

// ListByUploader returns every note uploaded by the user, newest first.
func (r *NotesRepository) ListByUploader(ctx context.Context, uploaderID string) ([]domain.Note, error) {
	if !validID(uploaderID) {
		return []domain.Note{}, nil
	}
	query := "SELECT " + noteColumns + noteFrom + " WHERE n.uploader_id = $1 ORDER BY n.upload_date DESC, n.id DESC"
	rows, err := r.pool.Query(ctx, query, uploaderID)
	if err != nil {
		return nil, fmt.Errorf("list uploader notes: %w", err)
	}
	return collectNotes(rows)
}

// IncrementDownloads bumps the download counter by one and returns the new value.
func (r *NotesRepository) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	if !validID(id) {
		return 0, ErrNotFound
	}
	var downloads int64
	err := r.pool.QueryRow(ctx, `UPDATE notes SET downloads = downloads + 1 WHERE id = $1 RETURNING downloads`, id).Scan(&downloads)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment downloads: %w", err)
	}
	return downloads, nil
}

// DeleteOwned removes a note and its ratings when ownerID uploaded it. release
// runs inside the transaction after the rows are deleted and before commit; an
// error from release rolls everything back.
func (r *NotesRepository) DeleteOwned(ctx context.Context, id, ownerID string, release func(domain.Note) error) (domain.Note, error) {
	if !validID(id) {
		return domain.Note{}, ErrNotFound
	}
	var deleted domain.Note
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := "SELECT " + noteColumns + noteFrom + " WHERE n.id = $1 FOR UPDATE OF n"
		note, err := scanNote(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock note: %w", err)
		}
		if note.UploaderID != ownerID {
			return ErrForbidden
		}
		if _, err := tx.Exec(ctx, `DELETE FROM note_ratings WHERE note_id = $1`, id); err != nil {
			return fmt.Errorf("delete ratings: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		if release != nil {
			if err := release(note); err != nil {
				return err
			}
		}
		deleted = note
		return nil
	})
	if err != nil {
		return domain.Note{}, err
	}
	return deleted, nil
}

// SuggestSubjects returns distinct subjects containing the fragment.
func (r *NotesRepository) SuggestSubjects(ctx context.Context, fragment string, limit int) ([]string, error) {
	const query = `
        SELECT DISTINCT subject
        FROM notes
        WHERE subject ILIKE $1
        ORDER BY subject
        LIMIT $2
    `
	return r.collectStrings(ctx, query, likePattern(fragment), limit)
}

// SuggestTitles returns note titles containing the fragment, most downloaded first.
func (r *NotesRepository) SuggestTitles(ctx context.Context, fragment string, limit int) ([]string, error) {
	const query = `
        SELECT title
        FROM notes
        WHERE title ILIKE $1
        ORDER BY downloads DESC, upload_date DESC
        LIMIT $2
    `
	return r.collectStrings(ctx, query, likePattern(fragment), limit)
}

// PopularSubjects returns subjects ordered by how many notes carry them.
func (r *NotesRepository) PopularSubjects(ctx context.Context, limit int) ([]domain.SubjectCount, error) {
	const query = `
        SELECT subject, COUNT(*)::int8
        FROM notes
        GROUP BY subject
        ORDER BY COUNT(*) DESC, subject ASC
        LIMIT $1
    `
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("popular subjects: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SubjectCount, 0)
	for rows.Next() {
		var sc domain.SubjectCount
		if err := rows.Scan(&sc.Subject, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// MostDownloaded returns the top notes by download count.
func (r *NotesRepository) MostDownloaded(ctx context.Context, limit int) ([]domain.NoteSummary, error) {
	const query = `
        SELECT id, title, subject, upload_date, downloads, rating
        FROM notes
        ORDER BY downloads DESC, upload_date DESC
        LIMIT $1
    `
	return querySummaries(ctx, r.pool, query, limit)
}

func (r *NotesRepository) collectStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func querySummaries(ctx context.Context, db DBTX, query string, args ...interface{}) ([]domain.NoteSummary, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.NoteSummary, 0)
	for rows.Next() {
		var s domain.NoteSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Subject, &s.UploadDate, &s.Downloads, &s.Rating); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func collectNotes(rows pgx.Rows) ([]domain.Note, error) {
	defer rows.Close()
	items := make([]domain.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanNote(row pgx.Row) (domain.Note, error) {
	var (
		note       domain.Note
		semester   *int
		tags       []string
		firstName  *string
		lastName   *string
		university *string
		course     *string
	)

	err := row.Scan(
		&note.ID,
		&note.Title,
		&note.Description,
		&note.Subject,
		&semester,
		&note.University,
		&tags,
		&note.File.URL,
		&note.File.MimeType,
		&note.File.Size,
		&note.File.OriginalFilename,
		&note.File.StorageKey,
		&note.UploaderID,
		&note.UploadDate,
		&note.Downloads,
		&note.Rating,
		&note.RatingCount,
		&firstName,
		&lastName,
		&university,
		&course,
	)
	if err != nil {
		return domain.Note{}, err
	}

	note.Semester = semester
	note.Tags = tags
	if note.Tags == nil {
		note.Tags = []string{}
	}
	if firstName != nil || lastName != nil || university != nil || course != nil {
		note.Uploader = &domain.Uploader{
			FirstName:  deref(firstName),
			LastName:   deref(lastName),
			University: deref(university),
			Course:     deref(course),
		}
	}
	return note, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps term for a case-insensitive substring match with LIKE
// metacharacters escaped.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
