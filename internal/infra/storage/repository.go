// Package storage provides the persistence layer for the robot's memory.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"

	"github.com/dewwy/petbot/internal/domain/memory"
)

// InteractionRepository is the append-only interaction log.
type InteractionRepository interface {
	// Append adds a record to the log.
	Append(ctx context.Context, rec memory.InteractionRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]memory.InteractionRecord, error)

	// Since returns every record at or after t, oldest first.
	Since(ctx context.Context, t time.Time) ([]memory.InteractionRecord, error)
}

// LearnedResponseRepository is the keyword to response table.
type LearnedResponseRepository interface {
	// Get returns memory.ErrNotFound for keywords never taught.
	Get(ctx context.Context, keyword string) (*memory.LearnedResponse, error)

	// Upsert inserts or replaces the entry for r.Keyword.
	Upsert(ctx context.Context, r memory.LearnedResponse) error

	// List returns every entry ordered by keyword.
	List(ctx context.Context) ([]memory.LearnedResponse, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Interactions InteractionRepository
	Learned      LearnedResponseRepository
	close        func() error
}

// Close releases the backend connection.
func (s *Store) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}
