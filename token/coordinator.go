package token

import (
	"context"
	"sync"
	"time"

	"farecraft/models"
	"farecraft/utils"
)

// DefaultAcquisitionTimeout bounds one coordinated acquisition, attempts included.
const DefaultAcquisitionTimeout = 5 * time.Minute

// FlightState is the per-scope state of the Coordinator.
type FlightState int

const (
	Idle FlightState = iota
	Acquiring
)

func (s FlightState) String() string {
	if s == Acquiring {
		return "acquiring"
	}
	return "idle"
}

// Acquisition mints and stores a fresh token set for a scope.
type Acquisition func(ctx context.Context, scopeKey string) (models.TokenSet, error)

type flight struct {
	done    chan struct{}
	ts      models.TokenSet
	err     error
	waiters int
}

// Coordinator runs at most one acquisition per scope. Callers arriving while a scope
// is Acquiring attach to the in-flight result instead of launching another browser.
type Coordinator struct {
	acquire Acquisition
	timeout time.Duration
	logger  *utils.Logger

	mu      sync.Mutex
	flights map[string]*flight
	// last is the most recent successful acquisition per scope.
	last map[string]models.TokenSet
}

// NewCoordinator creates a Coordinator around an acquisition function,
// normally (*Acquirer).AcquireWithAttempts.
func NewCoordinator(acquire Acquisition, logger *utils.Logger) *Coordinator {
	return &Coordinator{
		acquire: acquire,
		timeout: DefaultAcquisitionTimeout,
		logger:  logger,
		flights: make(map[string]*flight),
		last:    make(map[string]models.TokenSet),
	}
}

// SetTimeout bounds each acquisition. Non-positive values keep the default.
func (c *Coordinator) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// State reports whether scopeKey is currently being acquired.
func (c *Coordinator) State(scopeKey string) FlightState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.flights[scopeKey]; ok {
		return Acquiring
	}
	return Idle
}

// Acquire returns a fresh token set for scopeKey, joining an in-flight acquisition
// when there is one. The acquisition runs detached from every caller, bounded only
// by the coordinator timeout, so a caller whose ctx ends stops waiting without
// failing the others.
func (c *Coordinator) Acquire(ctx context.Context, scopeKey string) (models.TokenSet, error) {
	c.mu.Lock()
	f, ok := c.flights[scopeKey]
	if ok {
		f.waiters++
		c.mu.Unlock()
		c.logger.Debug("Joining in-flight acquisition for %s", scopeKey)
	} else {
		f = &flight{done: make(chan struct{})}
		c.flights[scopeKey] = f
		c.mu.Unlock()
		go c.run(context.WithoutCancel(ctx), scopeKey, f)
	}

	select {
	case <-f.done:
		if f.err != nil {
			return models.TokenSet{}, f.err
		}
		return f.ts.Clone(), nil
	case <-ctx.Done():
		return models.TokenSet{}, ctx.Err()
	}
}

// Refresh replaces a rejected token set. When an acquisition for scopeKey completed
// after rejected was minted, that result is returned and no browser is launched.
func (c *Coordinator) Refresh(ctx context.Context, scopeKey string, rejected models.TokenSet) (models.TokenSet, error) {
	c.mu.Lock()
	last, ok := c.last[scopeKey]
	c.mu.Unlock()
	if ok && last.RefreshedAt.After(rejected.RefreshedAt) {
		c.logger.Debug("Reusing token set for %s acquired at %s", scopeKey, last.RefreshedAt.Format(time.RFC3339))
		return last.Clone(), nil
	}
	return c.Acquire(ctx, scopeKey)
}

func (c *Coordinator) run(ctx context.Context, scopeKey string, f *flight) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ts, err := c.acquire(ctx, scopeKey)

	c.mu.Lock()
	f.ts, f.err = ts, err
	delete(c.flights, scopeKey)
	if err == nil {
		c.last[scopeKey] = ts.Clone()
	}
	waiters := f.waiters
	c.mu.Unlock()
	close(f.done)

	if waiters > 0 {
		c.logger.Debug("Acquisition for %s served %d waiting callers", scopeKey, waiters)
	}
}
