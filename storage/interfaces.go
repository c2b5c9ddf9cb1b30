package storage

import (
	"context"
	"errors"
	"time"

	"farecraft/models"
)

var (
	ErrRunNotFound   = errors.New("scrape run not found")
	ErrRunInProgress = errors.New("another scrape run is in progress")
)

// RunStore persists scrape runs and their result artifacts
type RunStore interface {
	CreateRun(ctx context.Context, run models.ScrapeRun) error
	// TryStart moves a queued run to running unless another run is already running.
	// The check and the transition happen atomically.
	TryStart(ctx context.Context, id string, startedAt time.Time) error
	// FinishRun records a terminal run.
	FinishRun(ctx context.Context, run models.ScrapeRun) error
	GetRun(ctx context.Context, id string) (models.ScrapeRun, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]models.ScrapeRun, error)
	// LatestRun returns the most recent succeeded run.
	LatestRun(ctx context.Context) (models.ScrapeRun, error)
	DeleteRun(ctx context.Context, id string) error
	// InterruptRuns fails every running run started before cutoff, recording reason.
	// It returns the ids it changed.
	InterruptRuns(ctx context.Context, cutoff time.Time, reason string, at time.Time) ([]string, error)
	Close() error
}

// ResultWriter exports a result artifact
type ResultWriter interface {
	WriteResult(result *models.ScrapeResult) error
}

// newestFirst orders runs by creation time, newest first, ids breaking ties.
func newestFirst(a, b models.ScrapeRun) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func page(runs []models.ScrapeRun, limit, offset int) []models.ScrapeRun {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(runs) {
		return []models.ScrapeRun{}
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs
}

// interrupted reports whether a running run started before cutoff and, if so,
// returns it as failed.
func interrupted(run models.ScrapeRun, cutoff time.Time, reason string, at time.Time) (models.ScrapeRun, bool) {
	if run.Status != models.RunRunning {
		return run, false
	}
	if run.StartedAt != nil && !run.StartedAt.Before(cutoff) {
		return run, false
	}
	run.Status = models.RunFailed
	run.Error = reason
	run.ErrorKind = models.KindInterrupted
	run.CompletedAt = &at
	return run, true
}
