package token

import (
	"context"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"farecraft/models"
	"farecraft/utils"
)

// Tokens the booking API insists on.
var DefaultRequiredTokens = []string{"_abck", "spa_session_id", "XSRF-TOKEN"}

var sensorExpiryRegex = regexp.MustCompile(`~(\d{10})~`)

// AcquirerConfig tunes one Acquirer.
type AcquirerConfig struct {
	RequiredTokens []string
	FallbackTTL    time.Duration
	Attempts       int
	AttemptPause   time.Duration
	MinInterval    time.Duration
	SettleMin      time.Duration
	SettleMax      time.Duration
	Sensor         SensorConfig
}

// DefaultAcquirerConfig mirrors production defaults: 1h fallback expiry, 3 attempts.
func DefaultAcquirerConfig() AcquirerConfig {
	return AcquirerConfig{
		RequiredTokens: DefaultRequiredTokens,
		FallbackTTL:    time.Hour,
		Attempts:       3,
		AttemptPause:   2 * time.Second,
		MinInterval:    10 * time.Second,
		SettleMin:      300 * time.Millisecond,
		SettleMax:      1200 * time.Millisecond,
		Sensor:         DefaultSensorConfig(),
	}
}

// Acquirer is the only component allowed to drive the token Source.
type Acquirer struct {
	source  Source
	store   Store
	cfg     AcquirerConfig
	limiter *utils.RateLimiter
	logger  *utils.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAcquirer creates a new Acquirer
func NewAcquirer(source Source, store Store, cfg AcquirerConfig, logger *utils.Logger) *Acquirer {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = time.Hour
	}
	return &Acquirer{
		source:  source,
		store:   store,
		cfg:     cfg,
		limiter: utils.NewRateLimiter(cfg.MinInterval),
		logger:  logger,
		now:     time.Now,
		sleep:   utils.SleepContext,
	}
}

// Acquire performs one end-to-end acquisition and stores the result.
// The browser session is closed on every exit path.
func (a *Acquirer) Acquire(ctx context.Context, scopeKey string) (ts models.TokenSet, err error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return ts, acquisitionFailed(err, "waiting for acquisition slot")
	}

	start := a.now()
	a.logger.Info("Launching browser to acquire trust tokens for %s", scopeKey)

	h, err := a.source.Open(ctx, scopeKey)
	if err != nil {
		return ts, acquisitionFailed(err, "opening browser session")
	}
	defer func() {
		if cerr := a.source.Close(h); cerr != nil {
			a.logger.Warn("Closing browser session for %s: %v", scopeKey, cerr)
		}
	}()

	if err := a.sleep(ctx, a.settle()); err != nil {
		return ts, acquisitionFailed(err, "settling page")
	}
	if err := a.source.SimulateInteraction(ctx, h); err != nil {
		return ts, acquisitionFailed(err, "simulating interaction")
	}

	values, err := WaitForSensor(ctx, a.cfg.Sensor, func(ctx context.Context) (map[string]string, error) {
		return a.source.Observe(ctx, h)
	})
	if err != nil {
		return ts, acquisitionFailed(err, "waiting for sensor")
	}

	// The sensor cookie turning trusted can rotate others; take one last snapshot.
	if latest, oerr := a.source.Observe(ctx, h); oerr == nil {
		for k, v := range latest {
			values[k] = v
		}
	}

	now := a.now()
	ts = models.TokenSet{
		ScopeKey:    scopeKey,
		Values:      values,
		ExpiresAt:   a.expiry(values[a.cfg.Sensor.Cookie], now),
		RefreshedAt: now,
	}
	if missing := ts.Missing(a.cfg.RequiredTokens); len(missing) > 0 {
		return models.TokenSet{}, models.NewError(models.KindAcquisitionFailed, nil,
			"browser session is missing required tokens %v", missing)
	}

	if err := a.store.Put(ctx, ts); err != nil {
		return models.TokenSet{}, acquisitionFailed(err, "persisting token set")
	}

	a.logger.Info("Trust tokens acquired for %s in %v (%d cookies, expires %s)",
		scopeKey, now.Sub(start).Round(time.Millisecond), len(values), ts.ExpiresAt.Format(time.RFC3339))
	return ts.Clone(), nil
}

// AcquireWithAttempts retries Acquire up to the configured attempt count.
func (a *Acquirer) AcquireWithAttempts(ctx context.Context, scopeKey string) (models.TokenSet, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.Attempts; attempt++ {
		ts, err := a.Acquire(ctx, scopeKey)
		if err == nil {
			return ts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		a.logger.Warn("Acquisition attempt %d/%d for %s failed: %v", attempt, a.cfg.Attempts, scopeKey, err)
		if attempt < a.cfg.Attempts {
			if serr := a.sleep(ctx, a.cfg.AttemptPause); serr != nil {
				break
			}
		}
	}
	return models.TokenSet{}, models.NewError(models.KindAcquisitionFailed, lastErr,
		"trust token acquisition for %s failed", scopeKey)
}

// expiry uses the timestamp embedded in the sensor cookie when it is plausible,
// otherwise now + FallbackTTL.
func (a *Acquirer) expiry(sensorValue string, now time.Time) time.Time {
	if at, ok := ExpiryFromSensor(sensorValue, now); ok {
		return at
	}
	return now.Add(a.cfg.FallbackTTL)
}

func (a *Acquirer) settle() time.Duration {
	lo, hi := a.cfg.SettleMin, a.cfg.SettleMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// ExpiryFromSensor extracts a ~<unix seconds>~ timestamp that lies within the next day.
func ExpiryFromSensor(value string, now time.Time) (time.Time, bool) {
	m := sensorExpiryRegex.FindStringSubmatch(value)
	if len(m) < 2 {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	at := time.Unix(secs, 0)
	if !at.After(now) || at.Sub(now) > 24*time.Hour {
		return time.Time{}, false
	}
	return at, true
}

func acquisitionFailed(err error, step string) error {
	return models.NewError(models.KindAcquisitionFailed, err, "trust token acquisition failed while %s", step)
}
