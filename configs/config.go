package configs

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	// MongoDB (time-series and client documents)
	MongoURI        string
	MongoDBName     string
	MongoTestDBName string

	// MySQL (shipment search)
	DatabaseURL string

	// Redis (rate-limit counters)
	RedisURL string

	// Identity provider (Auth0-compatible)
	IdentityDomain      string
	IdentityM2MClientID string
	IdentityM2MSecret   string
	IdentitySPAClientID string
	IdentitySPASecret   string
	IdentityAudience    string
	IdentityConnection  string
	UserTypeClaim       string

	// Downstream shipping API
	DownstreamAPIURL      string
	DownstreamAPIAudience string

	// Caching / limits
	CacheTTL            time.Duration
	CacheSweepInterval  time.Duration
	JWKSCacheTTL        time.Duration
	M2MTokenTTL         time.Duration
	HTTPTimeout         time.Duration
	RateLimitPerHour    int
	RegisterLimit       int
	RegisterLimitWindow time.Duration
}

func Load() *Config {

	godotenv.Load()

	return &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGODB_DB_NAME", "msd"),
		MongoTestDBName: getEnv("MONGODB_TEST_DB_NAME", "msd_test"),
		DatabaseURL:     getEnv("DATABASE_URL", "root:password@tcp(localhost:3306)/shipping?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),

		IdentityDomain:      getEnv("AUTH_DOMAIN", ""),
		IdentityM2MClientID: getEnv("AUTH_M2M_CLIENT_ID", ""),
		IdentityM2MSecret:   getEnv("AUTH_M2M_CLIENT_SECRET", ""),
		IdentitySPAClientID: getEnv("AUTH_SPA_CLIENT_ID", ""),
		IdentitySPASecret:   getEnv("AUTH_SPA_CLIENT_SECRET", ""),
		IdentityAudience:    getEnv("AUTH_AUDIENCE", ""),
		IdentityConnection:  getEnv("AUTH_CONNECTION", "Username-Password-Authentication"),
		UserTypeClaim:       getEnv("AUTH_USER_TYPE_CLAIM", "https://yourshippingdata.com/user_type"),

		DownstreamAPIURL:      getEnv("SHIPPING_API_URL", ""),
		DownstreamAPIAudience: getEnv("SHIPPING_API_AUDIENCE", ""),

		CacheTTL:            parseDuration(getEnv("CACHE_TTL", "10m")),
		CacheSweepInterval:  parseDuration(getEnv("CACHE_SWEEP_INTERVAL", "5m")),
		JWKSCacheTTL:        parseDuration(getEnv("JWKS_CACHE_TTL", "10m")),
		M2MTokenTTL:         parseDuration(getEnv("M2M_TOKEN_TTL", "55m")),
		HTTPTimeout:         parseDuration(getEnv("HTTP_TIMEOUT", "10s")),
		RateLimitPerHour:    parseInt(getEnv("RATE_LIMIT_PER_HOUR", "1000")),
		RegisterLimit:       parseInt(getEnv("REGISTER_LIMIT", "3")),
		RegisterLimitWindow: parseDuration(getEnv("REGISTER_LIMIT_WINDOW", "15m")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Hour
	}
	return d
}
