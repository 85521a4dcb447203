package timeseries

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"shipping-metrics-api/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type fakeStore struct {
	calls          int
	records        []bson.M
	err            error
	lastCollection string
	lastUseTestDB  bool
	lastFilter     bson.M
	lastSort       bson.D
}

func (f *fakeStore) Find(_ context.Context, collection string, useTestDB bool, filter bson.M, sort bson.D) ([]bson.M, error) {
	f.calls++
	f.lastCollection = collection
	f.lastUseTestDB = useTestDB
	f.lastFilter = filter
	f.lastSort = sort
	return f.records, f.err
}

func newTestExecutor(store Store) *Executor {
	return NewExecutor(store, cache.NewResultCache(time.Minute, time.Minute))
}

func queryParams(pairs ...string) url.Values {
	params := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		params.Set(pairs[i], pairs[i+1])
	}
	return params
}

func TestExecuteRejectsInvalidDatesBeforeStorage(t *testing.T) {
	store := &fakeStore{}
	executor := newTestExecutor(store)

	cases := []url.Values{
		queryParams("from", "nope", "to", "2024-01-31"),
		queryParams("from", "2024-01-01", "to", "nope"),
		queryParams("from", "2024-01-01"),
		queryParams(),
	}

	for _, params := range cases {
		_, err := executor.Execute(context.Background(), QueryConfig{
			Collection: "metrics_daily",
			PeriodType: "daily",
		}, params)

		assert.ErrorIs(t, err, ErrInvalidDateRange)
	}
	assert.Zero(t, store.calls, "storage must not be touched on validation failure")
}

func TestExecuteBuildsFilterAndSort(t *testing.T) {
	store := &fakeStore{records: []bson.M{{"periodKey": "2024-01-01"}}}
	executor := newTestExecutor(store)

	records, err := executor.Execute(context.Background(), QueryConfig{
		Collection: "geo_state_daily",
		PeriodType: "daily",
		SortFields: []SortField{{Field: "state"}, {Field: "periodKey", Descending: true}},
		FilterKeys: []string{"clientId", "state"},
	}, queryParams("from", "2024-01-01", "to", "2024-01-31", "clientId", "acme", "state", "CA"))

	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, "geo_state_daily", store.lastCollection)
	assert.False(t, store.lastUseTestDB)
	assert.Equal(t, bson.M{
		"periodType": "daily",
		"periodKey":  bson.M{"$gte": "2024-01-01", "$lte": "2024-01-31"},
		"clientId":   "acme",
		"state":      "CA",
	}, store.lastFilter)
	assert.Equal(t, bson.D{
		{Key: "state", Value: 1},
		{Key: "periodKey", Value: -1},
	}, store.lastSort)
}

func TestExecuteDefaultSortIsPeriodKeyAscending(t *testing.T) {
	store := &fakeStore{}
	executor := newTestExecutor(store)

	_, err := executor.Execute(context.Background(), QueryConfig{
		Collection: "metrics_daily",
		PeriodType: "daily",
	}, queryParams("from", "2024-01-01", "to", "2024-01-31"))

	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "periodKey", Value: 1}}, store.lastSort)
}

func TestExecuteWeeklySnapsRangeToWholeWeeks(t *testing.T) {
	store := &fakeStore{}
	executor := newTestExecutor(store)

	_, err := executor.Execute(context.Background(), QueryConfig{
		Collection: "metrics_weekly",
		PeriodType: "weekly",
	}, queryParams("from", "2024-01-17", "to", "2024-01-31"))

	require.NoError(t, err)
	assert.Equal(t, bson.M{"$gte": "2024-W03", "$lte": "2024-W05"}, store.lastFilter["periodKey"])
}

func TestExecuteCachesByFingerprint(t *testing.T) {
	store := &fakeStore{records: []bson.M{{"periodKey": "2024-01-01", "spend": 42.0}}}
	executor := newTestExecutor(store)
	cfg := QueryConfig{Collection: "metrics_daily", PeriodType: "daily", FilterKeys: []string{"clientId"}}
	params := queryParams("from", "2024-01-01", "to", "2024-01-31", "clientId", "acme")

	first, err := executor.Execute(context.Background(), cfg, params)
	require.NoError(t, err)

	second, err := executor.Execute(context.Background(), cfg, params)
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls, "second call must be served from cache")
	assert.Equal(t, first, second)
}

func TestExecuteCacheMissOnDifferentFilters(t *testing.T) {
	store := &fakeStore{}
	executor := newTestExecutor(store)
	cfg := QueryConfig{Collection: "metrics_daily", PeriodType: "daily", FilterKeys: []string{"clientId"}}

	_, err := executor.Execute(context.Background(), cfg,
		queryParams("from", "2024-01-01", "to", "2024-01-31", "clientId", "acme"))
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), cfg,
		queryParams("from", "2024-01-01", "to", "2024-01-31", "clientId", "other"))
	require.NoError(t, err)

	assert.Equal(t, 2, store.calls)
}

func TestExecuteEmptyResultIsValidAndCached(t *testing.T) {
	store := &fakeStore{records: nil}
	executor := newTestExecutor(store)
	cfg := QueryConfig{Collection: "metrics_daily", PeriodType: "daily"}
	params := queryParams("from", "2024-01-01", "to", "2024-01-31")

	records, err := executor.Execute(context.Background(), cfg, params)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	_, err = executor.Execute(context.Background(), cfg, params)
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls, "empty results are cacheable too")
}

func TestExecuteStorageErrorIsWrapped(t *testing.T) {
	store := &fakeStore{err: errors.New("socket closed")}
	executor := newTestExecutor(store)

	_, err := executor.Execute(context.Background(), QueryConfig{
		Collection: "metrics_daily",
		PeriodType: "daily",
	}, queryParams("from", "2024-01-01", "to", "2024-01-31"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidDateRange)
	assert.Contains(t, err.Error(), "metrics_daily")
}

func TestExecuteIgnoresUnknownParameters(t *testing.T) {
	store := &fakeStore{}
	executor := newTestExecutor(store)

	_, err := executor.Execute(context.Background(), QueryConfig{
		Collection: "metrics_daily",
		PeriodType: "daily",
		FilterKeys: []string{"clientId"},
	}, queryParams("from", "2024-01-01", "to", "2024-01-31", "bogus", "1", "periodKey", "hack"))

	require.NoError(t, err)
	assert.NotContains(t, store.lastFilter, "bogus")
	assert.Equal(t, bson.M{"$gte": "2024-01-01", "$lte": "2024-01-31"}, store.lastFilter["periodKey"])
}

func TestExecuteRoutesToTestDatabase(t *testing.T) {
	store := &fakeStore{}
	executor := newTestExecutor(store)

	_, err := executor.Execute(context.Background(), QueryConfig{
		Collection: "metrics_daily",
		PeriodType: "daily",
		UseTestDB:  true,
	}, queryParams("from", "2024-01-01", "to", "2024-01-31"))

	require.NoError(t, err)
	assert.True(t, store.lastUseTestDB)
}
