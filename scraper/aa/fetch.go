// Package aa talks to the airline's booking API: it builds search requests from a
// trust-token set, fetches award and cash prices side by side, and decodes the
// results into raw offers.
package aa

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"farecraft/models"
	"farecraft/utils"

	"golang.org/x/sync/errgroup"
)

// FetchConfig tunes the orchestrator.
type FetchConfig struct {
	Endpoint  string
	Origin    string
	UserAgent string
	// StaggerDelay holds the second branch back. 0 runs both at once; a delay longer
	// than a request approximates sequential fetching.
	StaggerDelay time.Duration
	Retry        utils.RetryPolicy
}

// Refresher replaces a token set the API rejected. Implementations may hand back a set
// minted after rejected instead of acquiring again.
type Refresher func(ctx context.Context, rejected models.TokenSet) (models.TokenSet, error)

// FetchResult carries both fare types for one search.
type FetchResult struct {
	Award []models.RawOffer
	Cash  []models.RawOffer
	// SessionExpiry is the latest session end advertised by either branch.
	SessionExpiry time.Time
	// Tokens is the set the branches finished with; it differs from the input
	// when a branch had to refresh.
	Tokens models.TokenSet
}

// Orchestrator runs the award and cash request flows concurrently.
type Orchestrator struct {
	newSession SessionFactory
	refresh    Refresher
	cfg        FetchConfig
	logger     *utils.Logger
}

// NewOrchestrator creates a new Orchestrator. refresh may be nil, in which case an
// AuthExpired response is returned without retrying.
func NewOrchestrator(newSession SessionFactory, refresh Refresher, cfg FetchConfig, logger *utils.Logger) *Orchestrator {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryPolicy()
	}
	return &Orchestrator{
		newSession: newSession,
		refresh:    refresh,
		cfg:        cfg,
		logger:     logger,
	}
}

type branchResult struct {
	offers []models.RawOffer
	expiry time.Time
	tokens models.TokenSet
}

// FetchBoth fetches award and cash offers with two workers. If either branch fails
// the fetch fails; the other branch still runs to completion and its result is dropped.
func (o *Orchestrator) FetchBoth(ctx context.Context, ts models.TokenSet, params models.SearchParams) (*FetchResult, error) {
	var award, cash branchResult

	g := new(errgroup.Group)
	g.SetLimit(2)
	g.Go(func() error {
		var err error
		award, err = o.branch(ctx, models.FareAward, ts, params)
		return err
	})
	g.Go(func() error {
		if o.cfg.StaggerDelay > 0 {
			if err := utils.SleepContext(ctx, o.cfg.StaggerDelay); err != nil {
				return fmt.Errorf("%s branch: %w", models.FareCash, err)
			}
		}
		var err error
		cash, err = o.branch(ctx, models.FareCash, ts, params)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &FetchResult{
		Award:         award.offers,
		Cash:          cash.offers,
		SessionExpiry: award.expiry,
		Tokens:        award.tokens,
	}
	if cash.expiry.After(res.SessionExpiry) {
		res.SessionExpiry = cash.expiry
	}
	if cash.tokens.RefreshedAt.After(res.Tokens.RefreshedAt) {
		res.Tokens = cash.tokens
	}
	return res, nil
}

// branch runs one fare type on its own transport session.
func (o *Orchestrator) branch(ctx context.Context, fareType models.FareType, ts models.TokenSet, params models.SearchParams) (branchResult, error) {
	logger := o.logger.With("branch", string(fareType))
	start := time.Now()

	session, err := o.newSession()
	if err != nil {
		return branchResult{}, fmt.Errorf("%s branch: %w", fareType, models.Fatal(err, "opening transport session"))
	}
	defer session.Close()

	current := ts.Clone()
	var escalate func(ctx context.Context) error
	if o.refresh != nil {
		escalate = func(ctx context.Context) error {
			fresh, err := o.refresh(ctx, current)
			if err != nil {
				return err
			}
			current = fresh
			return nil
		}
	}

	res, err := utils.Retry(ctx, o.cfg.Retry, func(ctx context.Context) (branchResult, error) {
		return o.attempt(ctx, session, fareType, current, params)
	}, escalate, logger)
	if err != nil {
		return branchResult{}, fmt.Errorf("%s branch: %w", fareType, err)
	}

	logger.Info("%s search returned %d offers in %v", fareType.SearchType(), len(res.offers), time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (o *Orchestrator) attempt(ctx context.Context, session Transport, fareType models.FareType, ts models.TokenSet, params models.SearchParams) (branchResult, error) {
	spec, err := NewRequestSpec(fareType, params, ts)
	if err != nil {
		return branchResult{}, err
	}
	req, err := spec.Build(o.cfg.Endpoint, o.cfg.Origin, o.cfg.UserAgent)
	if err != nil {
		return branchResult{}, err
	}

	resp, err := session.Send(ctx, req)
	if err := ClassifyResponse(resp, err); err != nil {
		return branchResult{}, err
	}

	parsed, err := ParseResponse(fareType, resp.Body, params.Passengers)
	if err != nil {
		return branchResult{}, err
	}
	return branchResult{offers: parsed.Offers, expiry: parsed.SessionExpiry, tokens: ts}, nil
}

// ClassifyResponse maps a transport outcome onto the retry taxonomy.
func ClassifyResponse(resp *Response, err error) error {
	if err != nil {
		var netErr net.Error
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
			return models.Transient(err, "network failure")
		default:
			return models.Transient(err, "request failed")
		}
	}
	if resp == nil {
		return models.Fatal(nil, "empty response")
	}

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		if looksLikeHTML(resp.Body) {
			return models.AuthExpired(nil, "bot manager served an HTML page instead of results")
		}
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.AuthExpired(nil, "status %d", code)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return models.Transient(nil, "status %d", code)
	default:
		return models.Fatal(nil, "unexpected status %d: %s", code, preview(resp.Body))
	}
}

func preview(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
