package timeseries

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"shipping-metrics-api/internal/cache"
	"shipping-metrics-api/internal/period"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrInvalidDateRange is returned when from/to are missing or do not
// parse as calendar dates. Handlers map it to a 400.
var ErrInvalidDateRange = errors.New("invalid or missing date parameters")

// SortField is one component of a query's sort order.
type SortField struct {
	Field      string
	Descending bool
}

// QueryConfig declares everything a time-series route needs: the target
// collection, its bucketing granularity, sort order, the whitelist of
// filterable query parameters, and whether the route reads the test
// database. One generic executor replaces the original per-route
// controllers; routes differ only in this struct.
type QueryConfig struct {
	Collection string
	PeriodType string
	SortFields []SortField
	FilterKeys []string
	UseTestDB  bool
	// ErrorMessage is the client-facing text for storage failures; it
	// never carries internal error detail.
	ErrorMessage string
}

// Store is the find-and-sort surface the executor needs from the
// document database. Kept minimal so tests can substitute a fake and
// assert on call counts.
type Store interface {
	Find(ctx context.Context, collection string, useTestDB bool, filter bson.M, sort bson.D) ([]bson.M, error)
}

// Executor runs parameterized time-series queries with a TTL result
// cache in front of the document store.
type Executor struct {
	store Store
	cache *cache.ResultCache
}

func NewExecutor(store Store, resultCache *cache.ResultCache) *Executor {
	return &Executor{
		store: store,
		cache: resultCache,
	}
}

// Execute validates the date range, assembles the filter document,
// consults the cache, and on a miss queries the configured collection.
// An empty result set is a valid response, not an error. Returned slices
// are shared with the cache and must be treated as read-only.
func (e *Executor) Execute(ctx context.Context, cfg QueryConfig, params url.Values) ([]bson.M, error) {
	from := params.Get("from")
	to := params.Get("to")

	dateRange := period.BuildDateRange(from, to, cfg.PeriodType)
	if dateRange == nil {
		return nil, ErrInvalidDateRange
	}

	filterKeys := cfg.FilterKeys
	if len(filterKeys) == 0 {
		filterKeys = []string{"clientId"}
	}
	filters := period.BuildFilters(params, filterKeys)

	fingerprint := cache.Fingerprint(cfg.Collection, filters["clientId"], from, to, filters)
	if cached, found := e.cache.Get(fingerprint); found {
		return cached.([]bson.M), nil
	}

	filter := bson.M{
		"periodKey": bson.M{"$gte": dateRange.Low, "$lte": dateRange.High},
	}
	if cfg.PeriodType != "" {
		filter["periodType"] = cfg.PeriodType
	}
	for key, value := range filters {
		filter[key] = value
	}

	sort := buildSort(cfg.SortFields)

	records, err := e.store.Find(ctx, cfg.Collection, cfg.UseTestDB, filter, sort)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", cfg.Collection, err)
	}
	if records == nil {
		records = []bson.M{}
	}

	e.cache.Set(fingerprint, records)

	return records, nil
}

func buildSort(fields []SortField) bson.D {
	if len(fields) == 0 {
		return bson.D{{Key: "periodKey", Value: 1}}
	}

	sort := make(bson.D, 0, len(fields))
	for _, f := range fields {
		direction := 1
		if f.Descending {
			direction = -1
		}
		sort = append(sort, bson.E{Key: f.Field, Value: direction})
	}
	return sort
}
