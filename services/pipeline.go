package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"farecraft/models"
	"farecraft/scraper/aa"
	"farecraft/token"
	"farecraft/utils"
)

// Fetcher retrieves both fare types for a search. Implemented by *aa.Orchestrator.
type Fetcher interface {
	FetchBoth(ctx context.Context, ts models.TokenSet, params models.SearchParams) (*aa.FetchResult, error)
}

// TokenProvider produces a freshly acquired token set. Implemented by *token.Coordinator.
type TokenProvider interface {
	Acquire(ctx context.Context, scopeKey string) (models.TokenSet, error)
}

// PipelineConfig tunes the controller.
type PipelineConfig struct {
	ScopeKey string
	// RefreshMargin is how close to expiry cached tokens stop being reused. nil means
	// token.DefaultRefreshMargin; zero reuses tokens until the moment they expire.
	RefreshMargin  *time.Duration
	RequiredTokens []string
	// Timeout bounds a whole run. 0 disables it.
	Timeout time.Duration
	// FareClasses maps a cabin class to the brand code compared across fare types.
	FareClasses map[string]string
	// FareClass overrides FareClasses for every cabin when set.
	FareClass string
}

// DefaultFareClasses maps cabins to the brand codes the booking API reports.
func DefaultFareClasses() map[string]string {
	return map[string]string{
		"economy":  "MAIN",
		"business": "BUSINESS",
		"first":    "FIRST",
	}
}

// Pipeline drives one search end to end: token freshness, acquisition, fetch, match.
type Pipeline struct {
	store   token.Store
	tokens  TokenProvider
	fetcher Fetcher
	matcher *Matcher
	cfg     PipelineConfig
	margin  time.Duration
	logger  *utils.Logger
	now     func() time.Time
}

// NewPipeline creates a new Pipeline
func NewPipeline(store token.Store, tokens TokenProvider, fetcher Fetcher, matcher *Matcher, cfg PipelineConfig, logger *utils.Logger) *Pipeline {
	if cfg.ScopeKey == "" {
		cfg.ScopeKey = "aa-booking"
	}
	margin := token.DefaultRefreshMargin
	if cfg.RefreshMargin != nil {
		margin = *cfg.RefreshMargin
	}
	if len(cfg.RequiredTokens) == 0 {
		cfg.RequiredTokens = token.DefaultRequiredTokens
	}
	if len(cfg.FareClasses) == 0 {
		cfg.FareClasses = DefaultFareClasses()
	}
	return &Pipeline{
		store:   store,
		tokens:  tokens,
		fetcher: fetcher,
		matcher: matcher,
		cfg:     cfg,
		margin:  margin,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes one search. Every failure is returned as a *models.PipelineError.
// A search where nothing matches yields an empty result, not an error.
func (p *Pipeline) Run(ctx context.Context, params models.SearchParams) (*models.ScrapeResult, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, p.fail(ctx, models.StageValidate, err)
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	logger := p.logger.With("route", params.Origin+"-"+params.Destination, "date", params.Date)
	start := time.Now()

	ts, stage, err := p.tokenSet(ctx, logger)
	if err != nil {
		return nil, p.fail(ctx, stage, err)
	}

	res, err := p.fetcher.FetchBoth(ctx, ts, params)
	if err != nil && models.KindOf(err) == models.KindAuthExpired {
		logger.Warn("Fetch rejected the token set after escalation, forcing one more acquisition")
		ts, err = p.tokens.Acquire(ctx, p.cfg.ScopeKey)
		if err != nil {
			return nil, p.fail(ctx, models.StageAcquire, err)
		}
		res, err = p.fetcher.FetchBoth(ctx, ts, params)
	}
	if err != nil {
		return nil, p.fail(ctx, models.StageFetch, err)
	}

	p.extendExpiry(ctx, res, logger)

	priced, anomalies := p.matcher.Match(res.Award, res.Cash, p.fareClass(params.CabinClass))
	for _, a := range anomalies {
		logger.Debug("Match anomaly: %s", a)
	}

	result := models.NewScrapeResult(params, priced)
	logger.Info("Pipeline finished with %d flights in %v", result.TotalResults, time.Since(start).Round(time.Millisecond))
	return result, nil
}

// tokenSet returns the cached set when it can be reused, otherwise a newly acquired one.
func (p *Pipeline) tokenSet(ctx context.Context, logger *utils.Logger) (models.TokenSet, models.Stage, error) {
	cached, ok, err := p.store.Get(ctx, p.cfg.ScopeKey)
	if err != nil {
		logger.Warn("Token store read failed, regenerating: %v", err)
		ok = false
	}

	decision := token.Classify(cached, ok, p.now(), p.margin, p.cfg.RequiredTokens)
	logger.Debug("Token freshness for %s: %s", p.cfg.ScopeKey, decision)
	if !decision.NeedsAcquisition() {
		return cached, "", nil
	}

	logger.Info("Acquiring trust tokens (%s)", decision)
	ts, err := p.tokens.Acquire(ctx, p.cfg.ScopeKey)
	if err != nil {
		return models.TokenSet{}, models.StageAcquire, err
	}
	return ts, "", nil
}

// extendExpiry stores the session end the API advertised. It runs only after both
// branches have finished.
func (p *Pipeline) extendExpiry(ctx context.Context, res *aa.FetchResult, logger *utils.Logger) {
	ts := res.Tokens
	if res.SessionExpiry.IsZero() || !res.SessionExpiry.After(p.now()) || !ts.Complete(p.cfg.RequiredTokens) {
		return
	}
	if res.SessionExpiry.Equal(ts.ExpiresAt) {
		return
	}
	updated := ts.WithExpiry(res.SessionExpiry, ts.RefreshedAt)
	if err := p.store.Put(ctx, updated); err != nil {
		logger.Warn("Failed to extend token expiry: %v", err)
		return
	}
	logger.Debug("Token expiry for %s moved to %s", p.cfg.ScopeKey, res.SessionExpiry.Format(time.RFC3339))
}

func (p *Pipeline) fareClass(cabin string) string {
	if p.cfg.FareClass != "" {
		return p.cfg.FareClass
	}
	if fc, ok := p.cfg.FareClasses[strings.ToLower(cabin)]; ok && fc != "" {
		return fc
	}
	return DefaultFareClass
}

// fail wraps err as the run's single terminal error. A run that ran out of time is
// reported as PipelineTimeout whatever stage it was in.
func (p *Pipeline) fail(ctx context.Context, stage models.Stage, err error) error {
	kind := models.KindOf(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = models.KindPipelineTimeout
		err = models.NewError(models.KindPipelineTimeout, err, "pipeline exceeded %v", p.cfg.Timeout)
	}
	p.logger.Error("Pipeline failed at %s (%s): %v", stage, kind, err)
	return &models.PipelineError{Stage: stage, Kind: kind, Err: err}
}
