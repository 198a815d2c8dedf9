package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyshare/studyshare-api/internal/domain"
)

// RatingsRepository provides helpers for note ratings and keeps each note's
// aggregate columns in step with its rating rows.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// RatingSubmitParams captures the payload required to upsert a rating.
type RatingSubmitParams struct {
	NoteID string
	UserID string
	Value  int
}

// RatingResult reports the stored rating and the note's recomputed aggregate.
type RatingResult struct {
	Rating    domain.Rating
	Aggregate domain.RatingAggregate
	Inserted  bool
}

// Submit upserts the user's rating and recomputes the note aggregate in one
// transaction. The note row stays locked until commit so concurrent
// submissions for the same note apply one after another.
func (r *RatingsRepository) Submit(ctx context.Context, params RatingSubmitParams) (RatingResult, error) {
	if !validID(params.NoteID) {
		return RatingResult{}, ErrNotFound
	}

	const upsert = `
        INSERT INTO note_ratings (note_id, user_id, rating)
        VALUES ($1,$2,$3)
        ON CONFLICT (note_id, user_id)
        DO UPDATE SET rating = EXCLUDED.rating, updated_at = now()
        RETURNING note_id, user_id, rating, created_at, updated_at, (xmax = 0) AS inserted
    `

	var result RatingResult
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockNote(ctx, tx, params.NoteID); err != nil {
			return err
		}

		err := tx.QueryRow(ctx, upsert, params.NoteID, params.UserID, params.Value).Scan(
			&result.Rating.NoteID,
			&result.Rating.UserID,
			&result.Rating.Value,
			&result.Rating.CreatedAt,
			&result.Rating.UpdatedAt,
			&result.Inserted,
		)
		if err != nil {
			return fmt.Errorf("upsert rating: %w", err)
		}

		agg, err := recomputeAggregate(ctx, tx, params.NoteID)
		if err != nil {
			return err
		}
		result.Aggregate = agg
		return nil
	})
	if err != nil {
		return RatingResult{}, err
	}
	return result, nil
}

// Delete removes the user's rating and recomputes the note aggregate.
func (r *RatingsRepository) Delete(ctx context.Context, noteID, userID string) (domain.RatingAggregate, error) {
	if !validID(noteID) || !validID(userID) {
		return domain.RatingAggregate{}, ErrNotFound
	}

	var agg domain.RatingAggregate
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockNote(ctx, tx, noteID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM note_ratings WHERE note_id = $1 AND user_id = $2`, noteID, userID)
		if err != nil {
			return fmt.Errorf("delete rating: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		agg, err = recomputeAggregate(ctx, tx, noteID)
		return err
	})
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	return agg, nil
}

func lockNote(ctx context.Context, tx pgx.Tx, noteID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM notes WHERE id = $1 FOR UPDATE`, noteID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock note: %w", err)
	}
	return nil
}

func recomputeAggregate(ctx context.Context, tx pgx.Tx, noteID string) (domain.RatingAggregate, error) {
	rows, err := tx.Query(ctx, `SELECT rating FROM note_ratings WHERE note_id = $1`, noteID)
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("load ratings: %w", err)
	}
	values := make([]int, 0)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return domain.RatingAggregate{}, err
		}
		values = append(values, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.RatingAggregate{}, err
	}

	agg := domain.ComputeAggregate(values)
	if _, err := tx.Exec(ctx, `UPDATE notes SET rating = $2, rating_count = $3 WHERE id = $1`, noteID, agg.Average, agg.Count); err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("update note aggregate: %w", err)
	}
	return agg, nil
}
