package personality

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/domain/rules"
	"go.uber.org/zap"
)

// ErrNoLearnedStore is returned when teaching without a store.
var ErrNoLearnedStore = errors.New("personality: no learned response store")

// LearnResponse teaches the robot to answer keyword with response. A new keyword starts at
// confidence 0.5; each repetition adds 0.1 up to 1.0.
func (e *Engine) LearnResponse(ctx context.Context, keyword, response string) (memory.LearnedResponse, error) {
	kw := memory.NormalizeKeyword(keyword)
	response = strings.TrimSpace(response)
	if kw == "" || response == "" {
		return memory.LearnedResponse{}, fmt.Errorf("%w: keyword and response are required", domain.ErrInvalidArgument)
	}
	if e.learned == nil {
		return memory.LearnedResponse{}, ErrNoLearnedStore
	}

	e.teachMu.Lock()
	defer e.teachMu.Unlock()

	existing, err := e.learned.Get(ctx, kw)
	known := err == nil && existing != nil
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return memory.LearnedResponse{}, fmt.Errorf("failed to read learned response %q: %w", kw, err)
	}

	next := memory.LearnedResponse{
		Keyword:    kw,
		Response:   response,
		Confidence: rules.NextConfidence(0, false),
		TimesUsed:  1,
		UpdatedAt:  e.clock.Now(),
	}
	if known {
		next.Confidence = rules.NextConfidence(existing.Confidence, true)
		next.TimesUsed = existing.TimesUsed + 1
	}

	if err := e.learned.Upsert(ctx, next); err != nil {
		return memory.LearnedResponse{}, fmt.Errorf("failed to store learned response %q: %w", kw, err)
	}
	e.Record(memory.TypeLearned, fmt.Sprintf("%s -> %s (%.1f)", kw, response, next.Confidence))
	return next, nil
}

// LearnedResponse returns the taught answer for keyword when it is confident enough.
// Unknown keywords and store failures both read as unknown.
func (e *Engine) LearnedResponse(ctx context.Context, keyword string) (string, bool) {
	if e.learned == nil {
		return "", false
	}
	kw := memory.NormalizeKeyword(keyword)
	r, err := e.learned.Get(ctx, kw)
	if err != nil {
		if !errors.Is(err, memory.ErrNotFound) {
			e.logger.Warn("failed to read learned response", zap.String("keyword", kw), zap.Error(err))
		}
		return "", false
	}
	if r == nil || !rules.Recallable(r.Confidence) {
		return "", false
	}
	return r.Response, true
}
