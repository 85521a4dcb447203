package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"shipping-metrics-api/internal/timeseries"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
)

// TimeSeriesHandler serves every time-series route family (metrics,
// weight zones, geo breakdowns) from one executor. Routes differ only in
// the QueryConfig passed to Query, replacing the per-collection
// controllers of earlier revisions.
type TimeSeriesHandler struct {
	executor *timeseries.Executor
}

func NewTimeSeriesHandler(executor *timeseries.Executor) *TimeSeriesHandler {
	return &TimeSeriesHandler{executor: executor}
}

// Query builds the gin handler for one configured collection.
// @Summary Query time-series records
// @Description Returns period-bucketed records for the configured collection
// @Produce json
// @Param clientId query string false "Client identifier filter"
// @Param from query string true "Range start (ISO date)"
// @Param to query string true "Range end (ISO date)"
// @Security BearerAuth
// @Success 200 {array} object
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
func (h *TimeSeriesHandler) Query(cfg timeseries.QueryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.executor.Execute(c.Request.Context(), cfg, c.Request.URL.Query())
		if err != nil {
			if errors.Is(err, timeseries.ErrInvalidDateRange) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing date parameters"})
				return
			}
			log.Printf("time-series query failed on %s: %v", cfg.Collection, err)
			message := cfg.ErrorMessage
			if message == "" {
				message = "Failed to fetch data"
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": message})
			return
		}

		// An empty period is a valid result, not a 404.
		c.JSON(http.StatusOK, records)
	}
}

// QueryWithMetricFilter behaves like Query but honors a comma-separated
// metric= parameter projecting the nested metrics document, as the
// weight-zone endpoints allow.
func (h *TimeSeriesHandler) QueryWithMetricFilter(cfg timeseries.QueryConfig) gin.HandlerFunc {
	base := h.Query(cfg)
	return func(c *gin.Context) {
		metric := c.Query("metric")
		if metric == "" {
			base(c)
			return
		}

		records, err := h.executor.Execute(c.Request.Context(), cfg, c.Request.URL.Query())
		if err != nil {
			if errors.Is(err, timeseries.ErrInvalidDateRange) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing date parameters"})
				return
			}
			log.Printf("time-series query failed on %s: %v", cfg.Collection, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": cfg.ErrorMessage})
			return
		}

		keys := strings.Split(metric, ",")
		c.JSON(http.StatusOK, projectMetrics(records, keys))
	}
}

// projectMetrics copies each record, keeping only the requested keys of
// the nested metrics document. Cached records are shared, so they are
// never mutated in place.
func projectMetrics(records []bson.M, keys []string) []bson.M {
	projected := make([]bson.M, 0, len(records))
	for _, record := range records {
		out := bson.M{}
		for k, v := range record {
			if k != "metrics" {
				out[k] = v
			}
		}

		if all, ok := record["metrics"].(bson.M); ok {
			filtered := bson.M{}
			for _, key := range keys {
				if value, exists := all[key]; exists {
					filtered[key] = value
				}
			}
			out["metrics"] = filtered
		}

		projected = append(projected, out)
	}
	return projected
}
