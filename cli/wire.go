package cli

import (
	"context"
	"fmt"
	"time"

	"farecraft/config"
	"farecraft/models"
	"farecraft/scraper/aa"
	"farecraft/services"
	"farecraft/storage"
	"farecraft/token"
	"farecraft/utils"
)

// stores pairs the token cache and run history of one storage driver.
type stores struct {
	tokens token.Store
	runs   storage.RunStore
	close  func() error
	// exclusive is set when no other process can share the store while it is open.
	exclusive bool
}

func openStores(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := storage.NewPostgresStore(ctx, cfg.Storage.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to PostgreSQL: %w", err)
		}
		pg.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
		return &stores{tokens: pg, runs: pg, close: pg.Close}, nil
	case "memory":
		return memoryStores(), nil
	default:
		bs, err := storage.NewBoltStore(cfg.Storage.BoltPath, logger)
		if err != nil {
			return nil, err
		}
		return &stores{tokens: bs, runs: bs, close: bs.Close, exclusive: true}, nil
	}
}

func memoryStores() *stores {
	runs := storage.NewMemoryRunStore()
	return &stores{tokens: storage.NewMemoryTokenStore(), runs: runs, close: runs.Close, exclusive: true}
}

// newRunManager builds the whole pipeline: browser, acquirer, coordinator,
// fetch orchestrator and matcher, wrapped in a run manager.
func newRunManager(cfg *config.Config, st *stores, logger *utils.Logger) *services.RunManager {
	// ================== Token acquisition ====================
	browser := aa.NewBrowserSource(cfg.BrowserConfig(), logger)
	acquirer := token.NewAcquirer(browser, st.tokens, cfg.AcquirerConfig(), logger)
	coordinator := token.NewCoordinator(acquirer.AcquireWithAttempts, logger)
	coordinator.SetTimeout(cfg.Token.AcquireTimeout)

	// ================== Fetching ====================
	scope := cfg.Token.ScopeKey
	refresh := func(ctx context.Context, rejected models.TokenSet) (models.TokenSet, error) {
		return coordinator.Refresh(ctx, scope, rejected)
	}
	orchestrator := aa.NewOrchestrator(aa.NewHTTPSessionFactory(cfg.TransportConfig()), refresh, cfg.FetchConfig(), logger)

	// ================== Pipeline ====================
	pipeline := services.NewPipeline(st.tokens, coordinator, orchestrator, services.NewMatcher(logger), cfg.PipelineConfig(), logger)
	manager := services.NewRunManager(pipeline, st.runs, logger)
	manager.SetStaleAfter(staleAfter(cfg))
	return manager
}

// staleAfter is how long a run can legitimately stay running: the pipeline
// deadline plus time to record the outcome.
func staleAfter(cfg *config.Config) time.Duration {
	return cfg.Pipeline.Timeout + time.Minute
}

// recoverRuns fails runs left running by a process that exited mid-run.
// An exclusive store has no live runs at startup; a shared one only has stale
// runs past the pipeline deadline.
func recoverRuns(ctx context.Context, cfg *config.Config, st *stores, manager *services.RunManager) error {
	olderThan := staleAfter(cfg)
	if st.exclusive {
		olderThan = 0
	}
	_, err := manager.RecoverInterrupted(ctx, olderThan)
	return err
}
