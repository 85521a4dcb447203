package main

import (
	"context"
	"log"
	"os"
	"time"

	"shipping-metrics-api/configs"
	"shipping-metrics-api/internal/cache"
	"shipping-metrics-api/internal/database"
	"shipping-metrics-api/internal/handlers"
	"shipping-metrics-api/internal/middleware"
	"shipping-metrics-api/internal/services"
	"shipping-metrics-api/internal/timeseries"

	"github.com/gin-gonic/gin"
)

// @title Shipping Metrics API
// @version 1.0
// @description Backend API for shipping time-series analytics, shipment search, and registration

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg := configs.Load()

	// Initialize storage
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dbManager, err := database.NewDBManager(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize databases: ", err)
	}

	// Caches
	resultCache := cache.NewResultCache(cfg.CacheTTL, cfg.CacheSweepInterval)
	counterCache := cache.NewCounterCache(cfg.RedisURL)

	// Services
	identityService := services.NewIdentityService(cfg)
	m2mService := services.NewM2MService(cfg)
	verifier := middleware.NewJWKSVerifier(cfg)

	// Query executor and handlers
	executor := timeseries.NewExecutor(timeseries.NewMongoStore(dbManager), resultCache)
	tsHandler := handlers.NewTimeSeriesHandler(executor)
	shipmentHandler := handlers.NewShipmentHandler(dbManager.SQL)
	clientHandler := handlers.NewClientHandler(dbManager)
	authHandler := handlers.NewAuthHandler(identityService, m2mService)

	// Setup Gin router
	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ValidationMiddleware())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Public auth routes
	auth := router.Group("/api/auth")
	auth.POST("/register",
		middleware.RateLimitByIP(counterCache, cfg.RegisterLimit, cfg.RegisterLimitWindow),
		authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/resend-verification", authHandler.ResendVerification)
	auth.GET("/health", authHandler.Health)

	// Client-facing analytics routes
	client := router.Group("/api")
	client.Use(middleware.AuthMiddleware(verifier, cfg.UserTypeClaim))
	client.Use(middleware.RequireUserType("client"))
	client.Use(middleware.RateLimitByUser(counterCache, cfg.RateLimitPerHour))

	registerTimeSeriesRoutes(client, tsHandler)
	client.GET("/shipment/search", shipmentHandler.SearchShipments)

	// Manager routes
	manager := router.Group("/api")
	manager.Use(middleware.AuthMiddleware(verifier, cfg.UserTypeClaim))
	manager.Use(middleware.RequireUserType("manager"))

	manager.GET("/clients/:id", clientHandler.GetClientByID)
	manager.POST("/auth/update-metadata", authHandler.UpdateMetadata)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"services": map[string]string{
				"mongodb": "connected",
				"mysql":   "connected",
				"redis": func() string {
					if counterCache.IsAvailable() {
						return "connected"
					}
					return "local_counters_only"
				}(),
			},
		})
	})

	// Start server
	port := ":" + cfg.ServerPort
	log.Printf("Server starting on port %s", port)

	if err := router.Run(port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

// registerTimeSeriesRoutes declares every time-series route as a
// QueryConfig; one executor serves them all.
func registerTimeSeriesRoutes(group *gin.RouterGroup, h *handlers.TimeSeriesHandler) {
	metrics := group.Group("/metrics")
	metrics.GET("/daily", h.Query(timeseries.QueryConfig{
		Collection:   "metrics_daily",
		PeriodType:   "daily",
		FilterKeys:   []string{"clientId"},
		ErrorMessage: "Failed to fetch daily metrics data",
	}))
	metrics.GET("/weekly", h.Query(timeseries.QueryConfig{
		Collection:   "metrics_weekly",
		PeriodType:   "weekly",
		FilterKeys:   []string{"clientId"},
		ErrorMessage: "Failed to fetch weekly metrics data",
	}))
	metrics.GET("/monthly", h.Query(timeseries.QueryConfig{
		Collection:   "metrics_monthly",
		PeriodType:   "monthly",
		FilterKeys:   []string{"clientId"},
		ErrorMessage: "Failed to fetch monthly metrics data",
	}))

	weightZone := group.Group("/weight-zone")
	weightZone.GET("/daily", h.QueryWithMetricFilter(timeseries.QueryConfig{
		Collection:   "weight_zone_daily",
		PeriodType:   "daily",
		FilterKeys:   []string{"clientId"},
		ErrorMessage: "Failed to fetch daily weight zone data",
	}))
	weightZone.GET("/weekly", h.QueryWithMetricFilter(timeseries.QueryConfig{
		Collection:   "weight_zone_weekly",
		PeriodType:   "weekly",
		FilterKeys:   []string{"clientId"},
		ErrorMessage: "Failed to fetch weekly weight zone data",
	}))
	weightZone.GET("/monthly", h.QueryWithMetricFilter(timeseries.QueryConfig{
		Collection:   "weight_zone_monthly",
		PeriodType:   "monthly",
		FilterKeys:   []string{"clientId"},
		ErrorMessage: "Failed to fetch monthly weight zone data",
	}))

	geo := group.Group("/geo")
	geo.GET("/state/daily", h.Query(timeseries.QueryConfig{
		Collection: "geo_state_daily",
		PeriodType: "daily",
		SortFields: []timeseries.SortField{
			{Field: "state"},
		},
		FilterKeys:   []string{"clientId", "state"},
		ErrorMessage: "Failed to fetch daily geo state data",
	}))
	geo.GET("/state/weekly", h.Query(timeseries.QueryConfig{
		Collection: "geo_state_weekly",
		PeriodType: "weekly",
		SortFields: []timeseries.SortField{
			{Field: "periodKey"},
			{Field: "state"},
		},
		FilterKeys:   []string{"clientId", "state"},
		ErrorMessage: "Failed to fetch weekly geo state data",
	}))
	geo.GET("/county/daily", h.Query(timeseries.QueryConfig{
		Collection: "geo_county_daily",
		PeriodType: "daily",
		SortFields: []timeseries.SortField{
			{Field: "state"},
			{Field: "county"},
		},
		FilterKeys:   []string{"clientId", "state"},
		ErrorMessage: "Failed to fetch daily geo county data",
	}))
	geo.GET("/county/weekly", h.Query(timeseries.QueryConfig{
		Collection: "geo_county_weekly",
		PeriodType: "weekly",
		SortFields: []timeseries.SortField{
			{Field: "periodKey"},
			{Field: "state"},
			{Field: "county"},
		},
		FilterKeys:   []string{"clientId", "state"},
		ErrorMessage: "Failed to fetch weekly geo county data",
	}))
}
