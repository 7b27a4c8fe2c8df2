package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dewwy/petbot/internal/domain/memory"
)

type mapClient struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newMapClient() *mapClient {
	return &mapClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapClient) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *mapClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = exp
	return nil
}

func (m *mapClient) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mapClient) Ping(context.Context) error { return nil }

type countingRepo struct {
	entries map[string]memory.LearnedResponse
	gets    int
}

func (r *countingRepo) Get(_ context.Context, kw string) (*memory.LearnedResponse, error) {
	r.gets++
	e, ok := r.entries[kw]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &e, nil
}

func (r *countingRepo) Upsert(_ context.Context, e memory.LearnedResponse) error {
	r.entries[e.Keyword] = e
	return nil
}

func (r *countingRepo) List(context.Context) ([]memory.LearnedResponse, error) {
	out := make([]memory.LearnedResponse, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, nil
}

func TestLearnedCache_ReadThrough(t *testing.T) {
	repo := &countingRepo{entries: map[string]memory.LearnedResponse{
		"sit": {Keyword: "sit", Response: "sitting", Confidence: 0.6},
	}}
	client := newMapClient()
	c := NewLearnedCache(client, repo, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, err := c.Get(ctx, "sit")
		if err != nil || r.Response != "sitting" {
			t.Fatalf("expected cached response, got %+v (%v)", r, err)
		}
	}
	if repo.gets != 1 {
		t.Errorf("expected one repository read, got %d", repo.gets)
	}
	if client.ttls["petbot:learned:sit"] != time.Minute {
		t.Errorf("expected ttl to be applied, got %v", client.ttls["petbot:learned:sit"])
	}
}

func TestLearnedCache_MissPropagatesNotFound(t *testing.T) {
	repo := &countingRepo{entries: map[string]memory.LearnedResponse{}}
	c := NewLearnedCache(newMapClient(), repo, 0, nil)

	if _, err := c.Get(context.Background(), "roll"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLearnedCache_UpsertRefreshes(t *testing.T) {
	repo := &countingRepo{entries: map[string]memory.LearnedResponse{}}
	client := newMapClient()
	c := NewLearnedCache(client, repo, 0, nil)
	ctx := context.Background()

	_ = c.Upsert(ctx, memory.LearnedResponse{Keyword: "paw", Response: "one", Confidence: 0.5})
	_ = c.Upsert(ctx, memory.LearnedResponse{Keyword: "paw", Response: "two", Confidence: 0.6})

	r, err := c.Get(ctx, "paw")
	if err != nil || r.Response != "two" {
		t.Errorf("expected refreshed entry, got %+v (%v)", r, err)
	}
	if repo.gets != 0 {
		t.Errorf("expected cache hit after upsert, got %d repository reads", repo.gets)
	}
}

func TestLearnedCache_RedisDownFallsBack(t *testing.T) {
	repo := &countingRepo{entries: map[string]memory.LearnedResponse{
		"sit": {Keyword: "sit", Response: "sitting"},
	}}
	client := newMapClient()
	client.failGet = true
	c := NewLearnedCache(client, repo, 0, nil)

	r, err := c.Get(context.Background(), "sit")
	if err != nil || r.Response != "sitting" {
		t.Errorf("expected repository fallback, got %+v (%v)", r, err)
	}
}

func TestLearnedCache_CorruptEntryIsDropped(t *testing.T) {
	repo := &countingRepo{entries: map[string]memory.LearnedResponse{
		"sit": {Keyword: "sit", Response: "sitting"},
	}}
	client := newMapClient()
	client.data["petbot:learned:sit"] = "{not json"
	c := NewLearnedCache(client, repo, 0, nil)

	r, err := c.Get(context.Background(), "sit")
	if err != nil || r.Response != "sitting" {
		t.Errorf("expected repository fallback, got %+v (%v)", r, err)
	}
	if repo.gets != 1 {
		t.Errorf("expected one repository read, got %d", repo.gets)
	}
}
