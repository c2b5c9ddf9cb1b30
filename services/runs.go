package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"farecraft/models"
	"farecraft/storage"
	"farecraft/utils"

	"github.com/google/uuid"
)

// Runner executes one search. Implemented by *Pipeline.
type Runner interface {
	Run(ctx context.Context, params models.SearchParams) (*models.ScrapeResult, error)
}

// RunManager records pipeline executions as scrape runs and admits one running run at a time.
type RunManager struct {
	runner   Runner
	store    storage.RunStore
	insights *InsightService
	logger   *utils.Logger
	now      func() time.Time

	// staleAfter is how long a run may stay running before a new run may reclaim its slot.
	staleAfter time.Duration

	// bgCtx scopes background runs; Shutdown cancels it.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// InterruptedReason is recorded on runs that did not finish in their own process.
const InterruptedReason = "interrupted"

// NewRunManager creates a new RunManager
func NewRunManager(runner Runner, store storage.RunStore, logger *utils.Logger) *RunManager {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &RunManager{
		runner:   runner,
		store:    store,
		insights: NewInsightService(logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

// SetStaleAfter lets a new run reclaim the slot from a run that has been running
// longer than d. Zero disables reclaiming.
func (m *RunManager) SetStaleAfter(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.staleAfter = d
}

// RecoverInterrupted fails runs that have been running for at least olderThan.
// Call it with zero at startup when no other process shares the store.
func (m *RunManager) RecoverInterrupted(ctx context.Context, olderThan time.Duration) (int, error) {
	now := m.now()
	ids, err := m.store.InterruptRuns(ctx, now.Add(-olderThan), InterruptedReason, now)
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	for _, id := range ids {
		m.logger.Warn("Marked run %s as %s", id, InterruptedReason)
	}
	return len(ids), nil
}

// Create validates params and records a queued run.
func (m *RunManager) Create(ctx context.Context, params models.SearchParams) (models.ScrapeRun, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return models.ScrapeRun{}, err
	}
	run := models.ScrapeRun{
		ID:        uuid.NewString(),
		Params:    params,
		Status:    models.RunQueued,
		CreatedAt: m.now(),
	}
	if err := m.store.CreateRun(ctx, run); err != nil {
		return models.ScrapeRun{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// Submit records a run, claims the running slot and executes it in the background.
// It returns storage.ErrRunInProgress when another run holds the slot; the rejected
// run is recorded as failed.
func (m *RunManager) Submit(ctx context.Context, params models.SearchParams) (models.ScrapeRun, error) {
	run, err := m.Create(ctx, params)
	if err != nil {
		return models.ScrapeRun{}, err
	}
	if err := m.start(ctx, &run); err != nil {
		return run, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// The request that submitted the run may end long before the run does.
		m.finish(m.bgCtx, run)
	}()
	return run, nil
}

// Execute records a run and executes it synchronously.
func (m *RunManager) Execute(ctx context.Context, params models.SearchParams) (models.ScrapeRun, error) {
	run, err := m.Create(ctx, params)
	if err != nil {
		return models.ScrapeRun{}, err
	}
	if err := m.start(ctx, &run); err != nil {
		return run, err
	}
	return m.finish(ctx, run), nil
}

// Wait blocks until background runs have finished
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels background runs and waits for their outcomes to be recorded.
func (m *RunManager) Shutdown() {
	m.bgCancel()
	m.wg.Wait()
}

func (m *RunManager) start(ctx context.Context, run *models.ScrapeRun) error {
	startedAt := m.now()
	err := m.store.TryStart(ctx, run.ID, startedAt)
	if errors.Is(err, storage.ErrRunInProgress) && m.staleAfter > 0 {
		if n, rerr := m.RecoverInterrupted(ctx, m.staleAfter); rerr != nil {
			m.logger.Error("%v", rerr)
		} else if n > 0 {
			err = m.store.TryStart(ctx, run.ID, startedAt)
		}
	}
	if err != nil {
		if errors.Is(err, storage.ErrRunInProgress) {
			m.logger.Warn("Rejecting run %s: %v", run.ID, err)
			run.Status = models.RunFailed
			run.Error = err.Error()
			completed := m.now()
			run.CompletedAt = &completed
			if ferr := m.store.FinishRun(ctx, *run); ferr != nil {
				m.logger.Error("Failed to record rejected run %s: %v", run.ID, ferr)
			}
		}
		return err
	}
	run.Status = models.RunRunning
	run.StartedAt = &startedAt
	return nil
}

func (m *RunManager) finish(ctx context.Context, run models.ScrapeRun) models.ScrapeRun {
	logger := m.logger.With("run_id", run.ID)
	logger.Info("Starting scrape %s -> %s on %s", run.Params.Origin, run.Params.Destination, run.Params.Date)

	result, err := m.runner.Run(ctx, run.Params)
	completed := m.now()
	run.CompletedAt = &completed

	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		run.ErrorKind = models.KindOf(err)
		if pe, ok := models.IsPipelineError(err); ok {
			run.ErrorStage = pe.Stage
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			run.Error = InterruptedReason + ": " + run.Error
			run.ErrorKind = models.KindInterrupted
		}
		logger.Error("Scrape failed: %v", err)
	} else {
		run.Status = models.RunSucceeded
		run.Result = result
		run.TotalFlights = result.TotalResults
		run.AvgCPP = round2(result.AverageCPP())
		logger.Info("Scrape succeeded with %d flights (avg CPP %.2f)", run.TotalFlights, run.AvgCPP)
	}

	// Persist even when ctx has been cancelled so the run never stays "running".
	if err := m.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("Failed to record run outcome: %v", err)
	}
	return run
}

func (m *RunManager) Get(ctx context.Context, id string) (models.ScrapeRun, error) {
	return m.store.GetRun(ctx, id)
}

func (m *RunManager) List(ctx context.Context, limit, offset int) ([]models.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return m.store.ListRuns(ctx, limit, offset)
}

func (m *RunManager) Latest(ctx context.Context) (models.ScrapeRun, error) {
	return m.store.LatestRun(ctx)
}

// Delete removes a finished run. Running runs cannot be deleted.
func (m *RunManager) Delete(ctx context.Context, id string) error {
	run, err := m.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status == models.RunRunning {
		return storage.ErrRunInProgress
	}
	return m.store.DeleteRun(ctx, id)
}

// Compare summarises two runs side by side. Deltas are second minus first.
func (m *RunManager) Compare(ctx context.Context, firstID, secondID string) (*models.RunComparison, error) {
	first, err := m.store.GetRun(ctx, firstID)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", firstID, err)
	}
	second, err := m.store.GetRun(ctx, secondID)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", secondID, err)
	}

	cmp := &models.RunComparison{
		First:       first,
		Second:      second,
		FlightDelta: second.TotalFlights - first.TotalFlights,
		AvgCPPDelta: round2(second.AvgCPP - first.AvgCPP),
	}
	for i, run := range []models.ScrapeRun{first, second} {
		if report := m.insights.Generate(run.Result); report.TotalFlights > 0 {
			cmp.BestCPP[i] = report.MaxCPP
		}
	}
	return cmp, nil
}

// Insights computes the summary for a run's result.
func (m *RunManager) Insights(run models.ScrapeRun) *models.InsightReport {
	return m.insights.Generate(run.Result)
}
