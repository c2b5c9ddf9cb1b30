package token_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"farecraft/models"
)

type memStore struct {
	mu   sync.Mutex
	sets map[string]models.TokenSet
	puts int
}

func newMemStore() *memStore {
	return &memStore{sets: make(map[string]models.TokenSet)}
}

func (s *memStore) Get(ctx context.Context, scopeKey string) (models.TokenSet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.sets[scopeKey]
	if !ok {
		return models.TokenSet{}, false, nil
	}
	return ts.Clone(), true, nil
}

func (s *memStore) Put(ctx context.Context, ts models.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[ts.ScopeKey] = ts.Clone()
	s.puts++
	return nil
}

func (s *memStore) Clear(ctx context.Context, scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, scopeKey)
	return nil
}

// fakeSource serves a scripted sequence of observations.
type fakeSource struct {
	mu           sync.Mutex
	observations []map[string]string
	observeIdx   int
	openErr      error
	interactErr  error

	opens    atomic.Int32
	closes   atomic.Int32
	interact atomic.Int32
}

type fakeHandle struct{ id int32 }

func (f *fakeSource) Open(ctx context.Context, scopeKey string) (interface{}, error) {
	n := f.opens.Add(1)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeHandle{id: n}, nil
}

func (f *fakeSource) Observe(ctx context.Context, h interface{}) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.observations) == 0 {
		return nil, errors.New("no cookies yet")
	}
	idx := f.observeIdx
	if idx >= len(f.observations) {
		idx = len(f.observations) - 1
	}
	f.observeIdx++
	out := make(map[string]string, len(f.observations[idx]))
	for k, v := range f.observations[idx] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) SimulateInteraction(ctx context.Context, h interface{}) error {
	f.interact.Add(1)
	return f.interactErr
}

func (f *fakeSource) Close(h interface{}) error {
	f.closes.Add(1)
	return nil
}

func trustedCookies() map[string]string {
	return map[string]string{
		"_abck":          "ABC~-1~YAAQ~-1~-1~",
		"spa_session_id": "sess-123",
		"XSRF-TOKEN":     "xsrf-456",
		"dtPC":           "dt-789",
	}
}
