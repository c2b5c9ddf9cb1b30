package token

import (
	"context"
	"strings"
	"time"

	"farecraft/models"
)

// SensorState is what one observation of the sensor cookie says.
type SensorState int

const (
	SensorPending SensorState = iota
	SensorTrusted
	SensorBlocked
)

// SensorClassifier inspects the sensor cookie value. An empty value means the cookie is not set yet.
type SensorClassifier func(value string) SensorState

// MarkerClassifier flags Trusted when any trusted marker appears and Blocked when any
// blocked marker appears. Blocked wins when both are present.
func MarkerClassifier(trusted, blocked []string) SensorClassifier {
	return func(value string) SensorState {
		if value == "" {
			return SensorPending
		}
		for _, m := range blocked {
			if m != "" && strings.Contains(value, m) {
				return SensorBlocked
			}
		}
		for _, m := range trusted {
			if m != "" && strings.Contains(value, m) {
				return SensorTrusted
			}
		}
		return SensorPending
	}
}

// SensorConfig controls WaitForSensor.
type SensorConfig struct {
	Cookie   string
	Interval time.Duration
	Deadline time.Duration
	Classify SensorClassifier
}

// DefaultSensorConfig watches _abck for the ~-1~ trusted marker, polling every 500ms for 20s.
func DefaultSensorConfig() SensorConfig {
	return SensorConfig{
		Cookie:   "_abck",
		Interval: 500 * time.Millisecond,
		Deadline: 20 * time.Second,
		Classify: MarkerClassifier([]string{"~-1~"}, nil),
	}
}

// Observer returns the current token snapshot of a live session.
type Observer func(ctx context.Context) (map[string]string, error)

// WaitForSensor polls observe until the sensor cookie reports Trusted, Blocked, or the
// deadline passes. It never blocks past the deadline. Observation errors are
// treated as "not ready yet" and the last one is attached to a timeout.
func WaitForSensor(ctx context.Context, cfg SensorConfig, observe Observer) (map[string]string, error) {
	classify := cfg.Classify
	if classify == nil {
		classify = DefaultSensorConfig().Classify
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultSensorConfig().Deadline
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Deadline)
	defer cancel()

	var lastErr error
	polls := 0
	for {
		polls++
		values, err := observe(ctx)
		if err != nil {
			lastErr = err
		} else {
			switch classify(values[cfg.Cookie]) {
			case SensorTrusted:
				return values, nil
			case SensorBlocked:
				return nil, models.NewError(models.KindSensorBlocked, nil,
					"sensor cookie %s reports a blocked session after %d polls", cfg.Cookie, polls)
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, sensorTimeout(ctx, cfg, polls, lastErr)
		case <-timer.C:
		}
	}
}

func sensorTimeout(ctx context.Context, cfg SensorConfig, polls int, lastErr error) error {
	cause := lastErr
	if cause == nil {
		cause = ctx.Err()
	}
	return models.NewError(models.KindSensorTimeout, cause,
		"sensor cookie %s not trusted within %v (%d polls)", cfg.Cookie, cfg.Deadline, polls)
}
