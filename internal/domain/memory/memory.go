// Package memory defines the records the robot keeps across runs.
// This package is PURE and must NOT import any infrastructure packages.
package memory

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/dewwy/petbot/internal/domain/emotion"
)

// Interaction record types.
const (
	TypeEmotionChange = "emotion_change"
	TypeCommand       = "command"
	TypeLearned       = "learned"
	TypeOverride      = "override"
)

// ErrNotFound is returned when a keyword has never been taught.
var ErrNotFound = errors.New("memory: not found")

// InteractionRecord is one entry of the append-only interaction log.
type InteractionRecord struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Details   string          `json:"details"`
	Emotion   emotion.Emotion `json:"emotion"`
}

// LearnedResponse is what the robot answers to a taught keyword.
type LearnedResponse struct {
	Keyword    string    `json:"keyword"`
	Response   string    `json:"response"`
	Confidence float64   `json:"confidence"` // 0.0-1.0
	TimesUsed  int       `json:"times_used"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NormalizeKeyword lower-cases a keyword, replaces punctuation with spaces and collapses
// whitespace, so "Sit!" and " sit " are the same entry. Apostrophes are kept.
func NormalizeKeyword(keyword string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, keyword)
	return strings.Join(strings.Fields(cleaned), " ")
}
