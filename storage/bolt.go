package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"farecraft/models"
	"farecraft/token"
	"farecraft/utils"

	bolt "github.com/boltdb/bolt"
)

const (
	tokenBucket = "token_sets"
	runBucket   = "scrape_runs"
)

var (
	_ token.Store = (*BoltStore)(nil)
	_ RunStore    = (*BoltStore)(nil)
)

// BoltStore keeps token sets and scrape runs in a single bolt file.
// Every write is one bolt transaction, so a record is replaced whole or not at all.
type BoltStore struct {
	db     *bolt.DB
	logger *utils.Logger
}

// NewBoltStore opens (or creates) the database at path and ensures both buckets exist.
func NewBoltStore(path string, logger *utils.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{tokenBucket, runBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	logger.Debug("Opened bolt store at %s", path)
	return &BoltStore{db: db, logger: logger}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(_ context.Context, scopeKey string) (models.TokenSet, bool, error) {
	var ts models.TokenSet
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(tokenBucket)).Get([]byte(scopeKey))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &ts)
	})
	if err != nil {
		return models.TokenSet{}, false, fmt.Errorf("failed to read token set %s: %w", scopeKey, err)
	}
	return ts, found, nil
}

func (s *BoltStore) Put(_ context.Context, ts models.TokenSet) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("failed to encode token set: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tokenBucket)).Put([]byte(ts.ScopeKey), data)
	})
}

// Clear removes the scope's token set. Clearing an absent scope is not an error.
func (s *BoltStore) Clear(_ context.Context, scopeKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tokenBucket)).Delete([]byte(scopeKey))
	})
}

func (s *BoltStore) CreateRun(_ context.Context, run models.ScrapeRun) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putRun(tx.Bucket([]byte(runBucket)), run)
	})
}

// TryStart scans for a running run and claims the slot in the same write transaction.
// Bolt allows one writer at a time, which makes the check and the transition atomic.
func (s *BoltStore) TryStart(_ context.Context, id string, startedAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		run, err := getRun(b, id)
		if err != nil {
			return err
		}
		err = b.ForEach(func(k, v []byte) error {
			var other models.ScrapeRun
			if err := json.Unmarshal(v, &other); err != nil {
				return err
			}
			if other.Status == models.RunRunning {
				return ErrRunInProgress
			}
			return nil
		})
		if err != nil {
			return err
		}
		run.Status = models.RunRunning
		run.StartedAt = &startedAt
		return putRun(b, run)
	})
}

func (s *BoltStore) FinishRun(_ context.Context, run models.ScrapeRun) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		if b.Get([]byte(run.ID)) == nil {
			return ErrRunNotFound
		}
		return putRun(b, run)
	})
}

func (s *BoltStore) GetRun(_ context.Context, id string) (models.ScrapeRun, error) {
	var run models.ScrapeRun
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		run, err = getRun(tx.Bucket([]byte(runBucket)), id)
		return err
	})
	return run, err
}

func (s *BoltStore) ListRuns(_ context.Context, limit, offset int) ([]models.ScrapeRun, error) {
	runs, err := s.allRuns()
	if err != nil {
		return nil, err
	}
	return page(runs, limit, offset), nil
}

func (s *BoltStore) LatestRun(_ context.Context) (models.ScrapeRun, error) {
	runs, err := s.allRuns()
	if err != nil {
		return models.ScrapeRun{}, err
	}
	for _, r := range runs {
		if r.Status == models.RunSucceeded {
			return r, nil
		}
	}
	return models.ScrapeRun{}, ErrRunNotFound
}

func (s *BoltStore) DeleteRun(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		if b.Get([]byte(id)) == nil {
			return ErrRunNotFound
		}
		return b.Delete([]byte(id))
	})
}

// InterruptRuns rewrites stale running runs in one write transaction.
func (s *BoltStore) InterruptRuns(_ context.Context, cutoff time.Time, reason string, at time.Time) ([]string, error) {
	var ids []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		var stale []models.ScrapeRun
		err := b.ForEach(func(k, v []byte) error {
			var r models.ScrapeRun
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("run %s: %w", k, err)
			}
			if r, ok := interrupted(r, cutoff, reason, at); ok {
				stale = append(stale, r)
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Bolt forbids writes while iterating.
		for _, r := range stale {
			if err := putRun(b, r); err != nil {
				return err
			}
			ids = append(ids, r.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// allRuns returns every run, newest first.
func (s *BoltStore) allRuns() ([]models.ScrapeRun, error) {
	runs := []models.ScrapeRun{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(runBucket)).ForEach(func(k, v []byte) error {
			var r models.ScrapeRun
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("run %s: %w", k, err)
			}
			runs = append(runs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return newestFirst(runs[i], runs[j]) })
	return runs, nil
}

func getRun(b *bolt.Bucket, id string) (models.ScrapeRun, error) {
	var run models.ScrapeRun
	v := b.Get([]byte(id))
	if v == nil {
		return run, ErrRunNotFound
	}
	if err := json.Unmarshal(v, &run); err != nil {
		return run, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return run, nil
}

func putRun(b *bolt.Bucket, run models.ScrapeRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	return b.Put([]byte(run.ID), data)
}
