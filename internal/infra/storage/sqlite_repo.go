package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
)

// Timestamps are stored as RFC3339 text with nanoseconds so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SQLiteInteractionRepository implements InteractionRepository for SQLite.
type SQLiteInteractionRepository struct {
	db *sql.DB
}

func NewSQLiteInteractionRepository(db *sql.DB) *SQLiteInteractionRepository {
	return &SQLiteInteractionRepository{db: db}
}

func (r *SQLiteInteractionRepository) Append(ctx context.Context, rec memory.InteractionRecord) error {
	query := `INSERT INTO interactions (timestamp, type, details, emotion) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, formatTime(rec.Timestamp), rec.Type, rec.Details, string(rec.Emotion))
	if err != nil {
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	return nil
}

func (r *SQLiteInteractionRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]memory.InteractionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []memory.InteractionRecord
	for rows.Next() {
		var rec memory.InteractionRecord
		var ts, em string
		if err := rows.Scan(&rec.ID, &ts, &rec.Type, &rec.Details, &em); err != nil {
			return nil, err
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("bad timestamp on interaction %d: %w", rec.ID, err)
		}
		rec.Emotion = emotion.Emotion(em)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteInteractionRepository) Recent(ctx context.Context, limit int) ([]memory.InteractionRecord, error) {
	query := `SELECT id, timestamp, type, details, emotion FROM interactions ORDER BY id DESC LIMIT ?`
	return r.getMany(ctx, query, limit)
}

func (r *SQLiteInteractionRepository) Since(ctx context.Context, t time.Time) ([]memory.InteractionRecord, error) {
	query := `SELECT id, timestamp, type, details, emotion FROM interactions WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC`
	return r.getMany(ctx, query, formatTime(t))
}

// SQLiteLearnedRepository implements LearnedResponseRepository for SQLite.
type SQLiteLearnedRepository struct {
	db *sql.DB
}

func NewSQLiteLearnedRepository(db *sql.DB) *SQLiteLearnedRepository {
	return &SQLiteLearnedRepository{db: db}
}

func (r *SQLiteLearnedRepository) Get(ctx context.Context, keyword string) (*memory.LearnedResponse, error) {
	query := `SELECT keyword, response, confidence, times_used, updated_at FROM learning WHERE keyword = ?`
	var lr memory.LearnedResponse
	var updated string
	err := r.db.QueryRowContext(ctx, query, keyword).Scan(&lr.Keyword, &lr.Response, &lr.Confidence, &lr.TimesUsed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learned response: %w", err)
	}
	if lr.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("bad timestamp on %q: %w", keyword, err)
	}
	return &lr, nil
}

func (r *SQLiteLearnedRepository) Upsert(ctx context.Context, lr memory.LearnedResponse) error {
	query := `
		INSERT INTO learning (keyword, response, confidence, times_used, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(keyword) DO UPDATE SET
			response = excluded.response,
			confidence = excluded.confidence,
			times_used = excluded.times_used,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, lr.Keyword, lr.Response, lr.Confidence, lr.TimesUsed, formatTime(lr.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert learned response: %w", err)
	}
	return nil
}

func (r *SQLiteLearnedRepository) List(ctx context.Context) ([]memory.LearnedResponse, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT keyword, response, confidence, times_used, updated_at FROM learning ORDER BY keyword ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.LearnedResponse
	for rows.Next() {
		var lr memory.LearnedResponse
		var updated string
		if err := rows.Scan(&lr.Keyword, &lr.Response, &lr.Confidence, &lr.TimesUsed, &updated); err != nil {
			return nil, err
		}
		if lr.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}
