package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/platform/logger"
	"go.uber.org/zap"
)

// ErrBufferFull is returned when the async log cannot accept another record.
var ErrBufferFull = errors.New("storage: interaction buffer full")

// ErrClosed is returned after the async log was closed.
var ErrClosed = errors.New("storage: interaction log closed")

// WriteObserver is told about every write the async log performs.
type WriteObserver interface {
	RecordStoreWrite(latency time.Duration, err error)
	RecordStoreDrop()
}

// AsyncInteractionLog queues interaction records and writes them from worker goroutines,
// so the control loop never waits on the database.
type AsyncInteractionLog struct {
	repo     InteractionRepository
	queue    chan memory.InteractionRecord
	workers  int
	timeout  time.Duration
	observer WriteObserver
	log      *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncInteractionLog creates the queue. Call Start to begin writing.
func NewAsyncInteractionLog(repo InteractionRepository, buffer, workers int, observer WriteObserver, log *logger.Logger) *AsyncInteractionLog {
	if buffer <= 0 {
		buffer = 64
	}
	if workers <= 0 {
		workers = 1
	}
	return &AsyncInteractionLog{
		repo:     repo,
		queue:    make(chan memory.InteractionRecord, buffer),
		workers:  workers,
		timeout:  5 * time.Second,
		observer: observer,
		log:      log,
	}
}

// Start launches the writer workers.
func (a *AsyncInteractionLog) Start() {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.run()
	}
}

func (a *AsyncInteractionLog) run() {
	defer a.wg.Done()
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		start := time.Now()
		err := a.repo.Append(ctx, rec)
		cancel()
		if a.observer != nil {
			a.observer.RecordStoreWrite(time.Since(start), err)
		}
		if err != nil {
			a.log.Warn("failed to persist interaction", zap.String("type", rec.Type), zap.Error(err))
		}
	}
}

// Append enqueues rec without blocking.
func (a *AsyncInteractionLog) Append(_ context.Context, rec memory.InteractionRecord) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- rec:
		return nil
	default:
		if a.observer != nil {
			a.observer.RecordStoreDrop()
		}
		return ErrBufferFull
	}
}

// Recent reads through to the repository.
func (a *AsyncInteractionLog) Recent(ctx context.Context, limit int) ([]memory.InteractionRecord, error) {
	return a.repo.Recent(ctx, limit)
}

// Since reads through to the repository.
func (a *AsyncInteractionLog) Since(ctx context.Context, t time.Time) ([]memory.InteractionRecord, error) {
	return a.repo.Since(ctx, t)
}

// Close stops accepting records and waits for the queue to drain.
func (a *AsyncInteractionLog) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}
