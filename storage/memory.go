package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"farecraft/models"
	"farecraft/token"
)

var (
	_ token.Store = (*MemoryTokenStore)(nil)
	_ RunStore    = (*MemoryRunStore)(nil)
)

// MemoryTokenStore keeps token sets in process memory. Used by tests and ephemeral runs.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	sets map[string]models.TokenSet
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{sets: make(map[string]models.TokenSet)}
}

func (s *MemoryTokenStore) Get(_ context.Context, scopeKey string) (models.TokenSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.sets[scopeKey]
	if !ok {
		return models.TokenSet{}, false, nil
	}
	return ts.Clone(), true, nil
}

func (s *MemoryTokenStore) Put(_ context.Context, ts models.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[ts.ScopeKey] = ts.Clone()
	return nil
}

func (s *MemoryTokenStore) Clear(_ context.Context, scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, scopeKey)
	return nil
}

// MemoryRunStore keeps scrape runs in process memory
type MemoryRunStore struct {
	mu   sync.Mutex
	runs map[string]models.ScrapeRun
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]models.ScrapeRun)}
}

func (s *MemoryRunStore) CreateRun(_ context.Context, run models.ScrapeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) TryStart(_ context.Context, id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	for _, r := range s.runs {
		if r.Status == models.RunRunning {
			return ErrRunInProgress
		}
	}
	run.Status = models.RunRunning
	run.StartedAt = &startedAt
	s.runs[id] = run
	return nil
}

func (s *MemoryRunStore) FinishRun(_ context.Context, run models.ScrapeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) GetRun(_ context.Context, id string) (models.ScrapeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return models.ScrapeRun{}, ErrRunNotFound
	}
	return run, nil
}

func (s *MemoryRunStore) ListRuns(_ context.Context, limit, offset int) ([]models.ScrapeRun, error) {
	return page(s.sorted(), limit, offset), nil
}

func (s *MemoryRunStore) LatestRun(_ context.Context) (models.ScrapeRun, error) {
	for _, r := range s.sorted() {
		if r.Status == models.RunSucceeded {
			return r, nil
		}
	}
	return models.ScrapeRun{}, ErrRunNotFound
}

func (s *MemoryRunStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return ErrRunNotFound
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryRunStore) InterruptRuns(_ context.Context, cutoff time.Time, reason string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, r := range s.runs {
		if r, ok := interrupted(r, cutoff, reason, at); ok {
			s.runs[id] = r
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryRunStore) Close() error { return nil }

func (s *MemoryRunStore) sorted() []models.ScrapeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]models.ScrapeRun, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return newestFirst(runs[i], runs[j]) })
	return runs
}
