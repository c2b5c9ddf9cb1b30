package config

import (
	"farecraft/scraper/aa"
	"farecraft/services"
	"farecraft/token"
	"farecraft/utils"
)

// AcquirerConfig builds the token acquirer settings, sensor wait included.
func (c *Config) AcquirerConfig() token.AcquirerConfig {
	return token.AcquirerConfig{
		RequiredTokens: c.Token.Required,
		FallbackTTL:    c.Token.FallbackTTL,
		Attempts:       c.Token.Attempts,
		AttemptPause:   c.Token.AttemptPause,
		MinInterval:    c.Token.MinInterval,
		SettleMin:      c.Token.SettleMin,
		SettleMax:      c.Token.SettleMax,
		Sensor: token.SensorConfig{
			Cookie:   c.Sensor.Cookie,
			Interval: c.Sensor.Interval,
			Deadline: c.Sensor.Deadline,
			Classify: token.MarkerClassifier(c.Sensor.TrustedMarkers, c.Sensor.BlockedMarkers),
		},
	}
}

func (c *Config) BrowserConfig() aa.BrowserConfig {
	return aa.BrowserConfig{
		Headless:     c.Browser.Headless,
		ExecPath:     c.Browser.ExecPath,
		UserAgent:    c.Browser.UserAgent,
		WarmupURL:    c.Browser.WarmupURL,
		CookieDomain: c.Browser.CookieDomain,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
		NavTimeout:   c.Browser.NavTimeout,
	}
}

func (c *Config) TransportConfig() aa.TransportConfig {
	return aa.TransportConfig{
		Timeout:      c.API.Timeout,
		MaxBodyBytes: c.API.MaxBodyBytes,
		Fingerprint:  c.API.Fingerprint,
	}
}

func (c *Config) RetryPolicy() utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Jitter:      c.Retry.Jitter,
	}
}

// FetchConfig builds the orchestrator settings. The browser's user agent is reused so
// API calls present the same client the sensor was earned with.
func (c *Config) FetchConfig() aa.FetchConfig {
	return aa.FetchConfig{
		Endpoint:     c.API.SearchEndpoint(),
		Origin:       c.API.BaseURL,
		UserAgent:    c.Browser.UserAgent,
		StaggerDelay: c.Fetch.StaggerDelay,
		Retry:        c.RetryPolicy(),
	}
}

func (c *Config) PipelineConfig() services.PipelineConfig {
	margin := c.Token.RefreshMargin
	return services.PipelineConfig{
		ScopeKey:       c.Token.ScopeKey,
		RefreshMargin:  &margin,
		RequiredTokens: c.Token.Required,
		Timeout:        c.Pipeline.Timeout,
		FareClass:      c.Pipeline.FareClass,
	}
}
