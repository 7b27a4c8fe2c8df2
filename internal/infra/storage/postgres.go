package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
)

// interactionModel maps to the interactions table.
type interactionModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Type      string    `gorm:"not null"`
	Details   string    `gorm:"not null;default:''"`
	Emotion   string    `gorm:"not null"`
}

func (interactionModel) TableName() string {
	return "interactions"
}

// learnedModel maps to the learning table.
type learnedModel struct {
	Keyword    string  `gorm:"primaryKey"`
	Response   string  `gorm:"not null"`
	Confidence float64 `gorm:"not null;default:0.5"`
	TimesUsed  int     `gorm:"not null;default:0"`
	UpdatedAt  time.Time
}

func (learnedModel) TableName() string {
	return "learning"
}

func interactionToModel(rec memory.InteractionRecord) interactionModel {
	return interactionModel{
		ID:        rec.ID,
		Timestamp: rec.Timestamp.UTC(),
		Type:      rec.Type,
		Details:   rec.Details,
		Emotion:   string(rec.Emotion),
	}
}

func interactionFromModel(m interactionModel) memory.InteractionRecord {
	return memory.InteractionRecord{
		ID:        m.ID,
		Timestamp: m.Timestamp,
		Type:      m.Type,
		Details:   m.Details,
		Emotion:   emotion.Emotion(m.Emotion),
	}
}

func learnedToModel(r memory.LearnedResponse) learnedModel {
	return learnedModel{
		Keyword:    r.Keyword,
		Response:   r.Response,
		Confidence: r.Confidence,
		TimesUsed:  r.TimesUsed,
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func learnedFromModel(m learnedModel) memory.LearnedResponse {
	return memory.LearnedResponse{
		Keyword:    m.Keyword,
		Response:   m.Response,
		Confidence: m.Confidence,
		TimesUsed:  m.TimesUsed,
		UpdatedAt:  m.UpdatedAt,
	}
}

// OpenPostgres connects to PostgreSQL, migrates the memory tables and returns its repositories.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&interactionModel{}, &learnedModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate memory tables: %w", err)
	}

	return &Store{
		Interactions: NewPostgresInteractionRepository(db),
		Learned:      NewPostgresLearnedRepository(db),
		close:        sqlDB.Close,
	}, nil
}

// PostgresInteractionRepository implements InteractionRepository using gorm.
type PostgresInteractionRepository struct {
	db *gorm.DB
}

// NewPostgresInteractionRepository creates a new PostgreSQL interaction repository.
func NewPostgresInteractionRepository(db *gorm.DB) *PostgresInteractionRepository {
	return &PostgresInteractionRepository{db: db}
}

// Append inserts a new interaction record.
func (r *PostgresInteractionRepository) Append(ctx context.Context, rec memory.InteractionRecord) error {
	m := interactionToModel(rec)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (r *PostgresInteractionRepository) Recent(ctx context.Context, limit int) ([]memory.InteractionRecord, error) {
	var rows []interactionModel
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent interactions: %w", err)
	}
	return interactionsFromModels(rows), nil
}

// Since returns records at or after t, oldest first.
func (r *PostgresInteractionRepository) Since(ctx context.Context, t time.Time) ([]memory.InteractionRecord, error) {
	var rows []interactionModel
	if err := r.db.WithContext(ctx).
		Where("timestamp >= ?", t.UTC()).
		Order("timestamp ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query interactions since %s: %w", t, err)
	}
	return interactionsFromModels(rows), nil
}

func interactionsFromModels(rows []interactionModel) []memory.InteractionRecord {
	out := make([]memory.InteractionRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, interactionFromModel(m))
	}
	return out
}

// PostgresLearnedRepository implements LearnedResponseRepository using gorm.
type PostgresLearnedRepository struct {
	db *gorm.DB
}

// NewPostgresLearnedRepository creates a new PostgreSQL learned response repository.
func NewPostgresLearnedRepository(db *gorm.DB) *PostgresLearnedRepository {
	return &PostgresLearnedRepository{db: db}
}

// Get returns memory.ErrNotFound for unknown keywords.
func (r *PostgresLearnedRepository) Get(ctx context.Context, keyword string) (*memory.LearnedResponse, error) {
	var m learnedModel
	err := r.db.WithContext(ctx).Where("keyword = ?", keyword).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learned response: %w", err)
	}
	lr := learnedFromModel(m)
	return &lr, nil
}

// Upsert inserts or replaces the keyword entry.
func (r *PostgresLearnedRepository) Upsert(ctx context.Context, lr memory.LearnedResponse) error {
	m := learnedToModel(lr)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "keyword"}},
		DoUpdates: clause.AssignmentColumns([]string{"response", "confidence", "times_used", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to upsert learned response: %w", err)
	}
	return nil
}

// List returns every learned response ordered by keyword.
func (r *PostgresLearnedRepository) List(ctx context.Context) ([]memory.LearnedResponse, error) {
	var rows []learnedModel
	if err := r.db.WithContext(ctx).Order("keyword ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list learned responses: %w", err)
	}
	out := make([]memory.LearnedResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, learnedFromModel(m))
	}
	return out, nil
}
