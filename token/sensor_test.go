package token_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"farecraft/models"
	"farecraft/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(values ...string) token.Observer {
	i := 0
	return func(ctx context.Context) (map[string]string, error) {
		v := values[len(values)-1]
		if i < len(values) {
			v = values[i]
		}
		i++
		return map[string]string{"_abck": v, "XSRF-TOKEN": "x"}, nil
	}
}

func fastSensor() token.SensorConfig {
	cfg := token.DefaultSensorConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.Deadline = 500 * time.Millisecond
	cfg.Classify = token.MarkerClassifier([]string{"~-1~"}, []string{"~BLOCKED~"})
	return cfg
}

func TestWaitForSensor_ReturnsOnceTrusted(t *testing.T) {
	values, err := token.WaitForSensor(context.Background(), fastSensor(),
		sequence("", "abc~0~def", "abc~0~def", "abc~-1~def"))

	require.NoError(t, err)
	assert.Equal(t, "abc~-1~def", values["_abck"])
	assert.Equal(t, "x", values["XSRF-TOKEN"])
}

func TestWaitForSensor_ExitsEarly(t *testing.T) {
	cfg := fastSensor()
	cfg.Deadline = 10 * time.Second

	start := time.Now()
	_, err := token.WaitForSensor(context.Background(), cfg, sequence("abc~-1~"))

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForSensor_TimesOut(t *testing.T) {
	cfg := fastSensor()
	cfg.Interval = 200 * time.Millisecond
	cfg.Deadline = 50 * time.Millisecond

	start := time.Now()
	_, err := token.WaitForSensor(context.Background(), cfg, sequence("abc~0~"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSensorTimeout))
	assert.Less(t, time.Since(start), 150*time.Millisecond, "must not overshoot the deadline by a poll interval")
}

func TestWaitForSensor_BlockedIsDistinct(t *testing.T) {
	_, err := token.WaitForSensor(context.Background(), fastSensor(),
		sequence("abc~0~", "abc~BLOCKED~"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSensorBlocked))
	assert.False(t, errors.Is(err, models.ErrSensorTimeout))
}

func TestWaitForSensor_ObserveErrorsAreNotFatal(t *testing.T) {
	calls := 0
	observe := func(ctx context.Context) (map[string]string, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("target closed")
		}
		return map[string]string{"_abck": "~-1~"}, nil
	}

	_, err := token.WaitForSensor(context.Background(), fastSensor(), observe)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitForSensor_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastSensor()
	cfg.Deadline = time.Hour
	_, err := token.WaitForSensor(ctx, cfg, sequence("pending"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMarkerClassifier(t *testing.T) {
	classify := token.MarkerClassifier([]string{"~-1~"}, []string{"~BLOCKED~"})

	assert.Equal(t, token.SensorPending, classify(""))
	assert.Equal(t, token.SensorPending, classify("abc~0~-1"))
	assert.Equal(t, token.SensorTrusted, classify("abc~-1~xyz"))
	assert.Equal(t, token.SensorBlocked, classify("abc~BLOCKED~"))
	assert.Equal(t, token.SensorBlocked, classify("abc~-1~~BLOCKED~"))
}
