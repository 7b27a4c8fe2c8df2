package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/memory"
)

// Recapper rebuilds a summary of a period from the interaction log.
// Used by the "what did you do today" endpoint.
type Recapper struct {
	repo InteractionRepository
}

// NewRecapper creates a recapper over repo.
func NewRecapper(repo InteractionRepository) *Recapper {
	return &Recapper{repo: repo}
}

// RecapEntry is one line of the recap.
type RecapEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Summary   string          `json:"summary"`
	Emotion   emotion.Emotion `json:"emotion"`
}

// Recap summarizes the interactions of a period.
type Recap struct {
	Since        time.Time                         `json:"since"`
	Until        time.Time                         `json:"until"`
	Interactions int                               `json:"interactions"`
	Commands     int                               `json:"commands"`
	Lessons      int                               `json:"lessons"`
	EmotionTime  map[emotion.Emotion]time.Duration `json:"emotion_time"`
	Dominant     emotion.Emotion                   `json:"dominant"`
	Highlights   []RecapEntry                      `json:"highlights"`
}

// Build replays the records in [since, until) in order.
func (r *Recapper) Build(ctx context.Context, since, until time.Time) (*Recap, error) {
	records, err := r.repo.Since(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}

	recap := &Recap{
		Since:       since,
		Until:       until,
		EmotionTime: make(map[emotion.Emotion]time.Duration),
	}

	var current emotion.Emotion
	var segmentStart time.Time
	for _, rec := range records {
		if !rec.Timestamp.Before(until) {
			break
		}
		recap.Interactions++

		switch rec.Type {
		case memory.TypeEmotionChange:
			if current != "" {
				recap.EmotionTime[current] += rec.Timestamp.Sub(segmentStart)
			}
			current = rec.Emotion
			segmentStart = rec.Timestamp
		case memory.TypeCommand:
			recap.Commands++
			recap.Highlights = append(recap.Highlights, entryFor(rec))
		case memory.TypeLearned:
			recap.Lessons++
			recap.Highlights = append(recap.Highlights, entryFor(rec))
		}
	}
	if current != "" {
		recap.EmotionTime[current] += until.Sub(segmentStart)
	}

	var best time.Duration
	for _, e := range emotion.All() {
		if d := recap.EmotionTime[e]; d > best {
			best = d
			recap.Dominant = e
		}
	}
	return recap, nil
}

func entryFor(rec memory.InteractionRecord) RecapEntry {
	return RecapEntry{
		Timestamp: rec.Timestamp,
		Type:      rec.Type,
		Summary:   rec.Details,
		Emotion:   rec.Emotion,
	}
}
