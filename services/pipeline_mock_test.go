package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"farecraft/models"
	"farecraft/scraper/aa"
	"farecraft/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) FetchBoth(ctx context.Context, ts models.TokenSet, params models.SearchParams) (*aa.FetchResult, error) {
	args := m.Called(ctx, ts, params)
	res, _ := args.Get(0).(*aa.FetchResult)
	return res, args.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) Acquire(ctx context.Context, scopeKey string) (models.TokenSet, error) {
	args := m.Called(ctx, scopeKey)
	return args.Get(0).(models.TokenSet), args.Error(1)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) Get(ctx context.Context, scopeKey string) (models.TokenSet, bool, error) {
	args := m.Called(ctx, scopeKey)
	return args.Get(0).(models.TokenSet), args.Bool(1), args.Error(2)
}

func (m *mockStore) Put(ctx context.Context, ts models.TokenSet) error {
	return m.Called(ctx, ts).Error(0)
}

func (m *mockStore) Clear(ctx context.Context, scopeKey string) error {
	return m.Called(ctx, scopeKey).Error(0)
}

func validTokens() models.TokenSet {
	now := time.Now()
	return models.TokenSet{
		ScopeKey:    testScope,
		Values:      map[string]string{"_abck": "a~-1~", aa.CookieSessionID: "sess-cached", aa.CookieXSRF: "x"},
		ExpiresAt:   now.Add(time.Hour),
		RefreshedAt: now,
	}
}

func searchFor() models.SearchParams {
	return models.SearchParams{Origin: "LAX", Destination: "JFK", Date: "2025-12-15"}
}

func TestPipeline_FatalFetchIsNotEscalated(t *testing.T) {
	store, tokens, fetcher := &mockStore{}, &mockTokens{}, &mockFetcher{}
	store.On("Get", mock.Anything, testScope).Return(validTokens(), true, nil)
	fetcher.On("FetchBoth", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.Fatal(nil, "unexpected status 400")).Once()

	p := NewPipeline(store, tokens, fetcher, NewMatcher(utils.NewNopLogger()), PipelineConfig{ScopeKey: testScope}, utils.NewNopLogger())
	_, err := p.Run(context.Background(), searchFor())

	pe, ok := models.IsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageFetch, pe.Stage)
	assert.Equal(t, models.KindFatal, pe.Kind)
	tokens.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything)
	fetcher.AssertExpectations(t)
}

func TestPipeline_StoreReadFailureRegenerates(t *testing.T) {
	store, tokens, fetcher := &mockStore{}, &mockTokens{}, &mockFetcher{}
	fresh := validTokens()
	store.On("Get", mock.Anything, testScope).Return(models.TokenSet{}, false, errors.New("bolt: database not open"))
	tokens.On("Acquire", mock.Anything, testScope).Return(fresh, nil).Once()
	fetcher.On("FetchBoth", mock.Anything, fresh, mock.Anything).
		Return(&aa.FetchResult{Tokens: fresh}, nil).Once()

	p := NewPipeline(store, tokens, fetcher, NewMatcher(utils.NewNopLogger()), PipelineConfig{ScopeKey: testScope}, utils.NewNopLogger())
	result, err := p.Run(context.Background(), searchFor())

	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalResults)
	tokens.AssertExpectations(t)
	fetcher.AssertExpectations(t)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestPipeline_AcquisitionFailureStopsBeforeFetch(t *testing.T) {
	store, tokens, fetcher := &mockStore{}, &mockTokens{}, &mockFetcher{}
	store.On("Get", mock.Anything, testScope).Return(models.TokenSet{}, false, nil)
	tokens.On("Acquire", mock.Anything, testScope).
		Return(models.TokenSet{}, models.NewError(models.KindAcquisitionFailed, models.ErrSensorBlocked, "sensor blocked"))

	p := NewPipeline(store, tokens, fetcher, NewMatcher(utils.NewNopLogger()), PipelineConfig{ScopeKey: testScope}, utils.NewNopLogger())
	_, err := p.Run(context.Background(), searchFor())

	pe, ok := models.IsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageAcquire, pe.Stage)
	assert.Equal(t, models.KindAcquisitionFailed, pe.Kind)
	assert.ErrorIs(t, err, models.ErrSensorBlocked)
	fetcher.AssertNotCalled(t, "FetchBoth", mock.Anything, mock.Anything, mock.Anything)
}
