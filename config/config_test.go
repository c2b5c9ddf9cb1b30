package config

import (
	"testing"
	"time"

	"farecraft/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "_abck", cfg.Sensor.Cookie)
	assert.Equal(t, 500*time.Millisecond, cfg.Sensor.Interval)
	assert.Equal(t, 20*time.Second, cfg.Sensor.Deadline)
	assert.Equal(t, []string{"~-1~"}, cfg.Sensor.TrustedMarkers)
	assert.Equal(t, time.Hour, cfg.Token.FallbackTTL)
	assert.Equal(t, 5*time.Minute, cfg.Token.RefreshMargin)
	assert.Equal(t, 5*time.Minute, cfg.Token.AcquireTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "https://www.aa.com/booking/api/search/itinerary", cfg.API.SearchEndpoint())
	assert.Equal(t, "firefox", cfg.TransportConfig().Fingerprint)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FARECRAFT_RETRY__MAX_ATTEMPTS", "5")
	t.Setenv("FARECRAFT_FETCH__STAGGER_DELAY", "750ms")
	t.Setenv("FARECRAFT_BROWSER__HEADLESS", "false")
	t.Setenv("FARECRAFT_SENSOR__BLOCKED_MARKERS", "~0~,~BLOCK~")
	t.Setenv("FARECRAFT_PIPELINE__FARE_CLASS", "BUSINESS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 750*time.Millisecond, cfg.Fetch.StaggerDelay)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"~0~", "~BLOCK~"}, cfg.Sensor.BlockedMarkers)
	assert.Equal(t, "BUSINESS", cfg.PipelineConfig().FareClass)
}

func TestLoad_ZeroRefreshMarginIsKept(t *testing.T) {
	t.Setenv("FARECRAFT_TOKEN__REFRESH_MARGIN", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	margin := cfg.PipelineConfig().RefreshMargin
	require.NotNil(t, margin)
	assert.Equal(t, time.Duration(0), *margin)
}

func TestConfig_SensorMarkers(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// An untrusted ~0~ sensor is still being computed; the wait keeps polling.
	classify := cfg.AcquirerConfig().Sensor.Classify
	assert.Equal(t, token.SensorPending, classify("abc~0~xyz"))
	assert.Equal(t, token.SensorTrusted, classify("abc~-1~xyz"))

	t.Setenv("FARECRAFT_SENSOR__BLOCKED_MARKERS", "~BLOCK~")
	cfg, err = Load()
	require.NoError(t, err)
	classify = cfg.AcquirerConfig().Sensor.Classify
	assert.Equal(t, token.SensorBlocked, classify("abc~BLOCK~xyz"))
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"FARECRAFT_STORAGE__DRIVER": "mongo"}},
		{"postgres without url", map[string]string{"FARECRAFT_STORAGE__DRIVER": "postgres"}},
		{"zero attempts", map[string]string{"FARECRAFT_RETRY__MAX_ATTEMPTS": "0"}},
		{"max below base", map[string]string{"FARECRAFT_RETRY__BASE_DELAY": "20s"}},
		{"bad warmup url", map[string]string{"FARECRAFT_BROWSER__WARMUP_URL": "not a url"}},
		{"unknown fingerprint", map[string]string{"FARECRAFT_API__FINGERPRINT": "netscape"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfig_ComponentSettings(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	acq := cfg.AcquirerConfig()
	assert.Equal(t, 3, acq.Attempts)
	assert.Equal(t, "_abck", acq.Sensor.Cookie)
	require.NotNil(t, acq.Sensor.Classify)

	fetch := cfg.FetchConfig()
	assert.Equal(t, cfg.Browser.UserAgent, fetch.UserAgent)
	assert.Equal(t, cfg.API.BaseURL, fetch.Origin)
	assert.True(t, fetch.Retry.Jitter)

	assert.Equal(t, "aa-booking", cfg.PipelineConfig().ScopeKey)
}
