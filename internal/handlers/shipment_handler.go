package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"shipping-metrics-api/internal/models"
	"shipping-metrics-api/internal/period"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ShipmentHandler struct {
	db *gorm.DB
}

func NewShipmentHandler(db *gorm.DB) *ShipmentHandler {
	return &ShipmentHandler{db: db}
}

// shipmentSearchParams is the validated query surface of the search
// endpoint.
type shipmentSearchParams struct {
	ClientID string
	Search   string
	Carriers []string
	ShipVias []string
	States   []string
	From     *time.Time
	ToNext   *time.Time // day after "to": upper bound, exclusive
	Page     int
	PageSize int
}

type paginationInfo struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
}

// SearchShipments runs the relational shipment search.
// @Summary Search shipments
// @Description Substring search with multi-value filters and pagination
// @Produce json
// @Param clientId query string true "Client identifier"
// @Param search query string false "Substring matched against tracking number and destination zip"
// @Param carrier query string false "Comma-separated carrier filter"
// @Param shipvia query string false "Comma-separated shipping method filter"
// @Param state query string false "Comma-separated state filter"
// @Param daterange query string false "from,to date pair"
// @Param page query int false "1-indexed page number"
// @Param pageSize query int false "Rows per page"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
func (h *ShipmentHandler) SearchShipments(c *gin.Context) {
	params, err := parseShipmentSearchParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	// Count and page select are independent reads; run them
	// concurrently on separate sessions.
	var (
		wg       sync.WaitGroup
		data     []models.Shipment
		total    int64
		dataErr  error
		countErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		offset := (params.Page - 1) * params.PageSize
		dataErr = h.applyFilters(params).
			Order("shipped_at DESC").
			Offset(offset).
			Limit(params.PageSize).
			Find(&data).Error
	}()
	go func() {
		defer wg.Done()
		countErr = h.applyFilters(params).
			Model(&models.Shipment{}).
			Count(&total).Error
	}()
	wg.Wait()

	if dataErr != nil || countErr != nil {
		log.Printf("shipment search failed: data=%v count=%v", dataErr, countErr)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to search shipments"})
		return
	}

	if data == nil {
		data = []models.Shipment{}
	}

	totalPages := (total + int64(params.PageSize) - 1) / int64(params.PageSize)

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"pagination": paginationInfo{
			Page:       params.Page,
			PageSize:   params.PageSize,
			TotalCount: total,
			TotalPages: totalPages,
		},
	})
}

// applyFilters builds a fresh filtered query. Every value is a bound
// parameter; nothing is concatenated into SQL text.
func (h *ShipmentHandler) applyFilters(params *shipmentSearchParams) *gorm.DB {
	query := h.db.Session(&gorm.Session{}).Where("client_id = ?", params.ClientID)

	if params.Search != "" {
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where(
			"LOWER(tracking_number) LIKE ? OR LOWER(destination_zip) LIKE ?",
			pattern, pattern,
		)
	}

	if len(params.Carriers) > 0 {
		query = query.Where("carrier IN ?", params.Carriers)
	}
	if len(params.ShipVias) > 0 {
		query = query.Where("ship_via IN ?", params.ShipVias)
	}
	if len(params.States) > 0 {
		query = query.Where("state IN ?", params.States)
	}

	if params.From != nil && params.ToNext != nil {
		query = query.Where("shipped_at >= ? AND shipped_at < ?", *params.From, *params.ToNext)
	}

	return query
}

func parseShipmentSearchParams(c *gin.Context) (*shipmentSearchParams, error) {
	clientID := c.Query("clientId")
	if clientID == "" {
		return nil, errClientIDRequired
	}

	params := &shipmentSearchParams{
		ClientID: clientID,
		Search:   strings.TrimSpace(c.Query("search")),
		Carriers: parseMultiValue(c.Query("carrier")),
		ShipVias: parseMultiValue(c.Query("shipvia")),
		States:   parseMultiValue(c.Query("state")),
		Page:     parsePositiveInt(c.Query("page"), 1),
		PageSize: parsePositiveInt(c.Query("pageSize"), 10),
	}

	if daterange := c.Query("daterange"); daterange != "" {
		from, toNext, ok := parseShipmentDateRange(daterange)
		if !ok {
			return nil, errInvalidDateRange
		}
		params.From = &from
		params.ToNext = &toNext
	}

	return params, nil
}

var (
	errClientIDRequired = &searchError{"clientId is required"}
	errInvalidDateRange = &searchError{"Invalid daterange format, expected from,to"}
)

type searchError struct{ msg string }

func (e *searchError) Error() string { return e.msg }

// parseMultiValue splits a comma-separated filter into trimmed values.
func parseMultiValue(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func parsePositiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// parseShipmentDateRange parses "from,to" and returns the range start
// and the day after "to", so the whole "to" calendar day is included.
func parseShipmentDateRange(raw string) (time.Time, time.Time, bool) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, false
	}

	from, ok := period.ParseDate(strings.TrimSpace(parts[0]))
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := period.ParseDate(strings.TrimSpace(parts[1]))
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	return from, to.AddDate(0, 0, 1), true
}
