// Package config provides centralized configuration for the restsql server.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration values.
type Config struct {
	Port string // HTTP server port (e.g., ":8080")

	Dialect string // postgresql | sqlite | mysql | clickhouse
	DSN     string // driver-specific data source name / connection string

	SchemaName   string // default schema/namespace objects are resolved in
	SchemaPath   string // path to a JSON introspection document; empty means introspect live (sqlite only)
	DefaultRole  string // role forwarded to the executor when no auth principal is attached

	MaxRequestBody int64 // maximum request body size in bytes
	MaxQueryDepth  int   // maximum nesting depth for embedded selects
	MaxQueryLimit  int   // maximum rows per query (0 = unlimited)
	DefaultLimit   int   // default limit when not specified (0 = unlimited)

	APIKey           string   // bearer token required on every request; empty disables auth
	RateLimitEnabled bool     // whether rate limiting is enabled
	RateLimit        int      // requests per minute per IP (default 100)
	CORSOrigins      []string // allowed CORS origins (empty allows none, "*" allows all)
	RequestTimeout   int      // request timeout in seconds (0 uses default of 30s)

	// PreRequestSchema/PreRequestFunction name the db_pre_request hook
	// (PostgreSQL only); empty Function disables the hook entirely.
	PreRequestSchema   string
	PreRequestFunction string
}

// Cfg is the global configuration instance, loaded at startup.
var Cfg Config

func init() {
	godotenv.Load()
	Cfg = Load()
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	rateLimitEnabled := strings.ToLower(os.Getenv("RESTSQL_RATE_LIMIT_ENABLED")) == "true"

	rateLimit := 100
	if val := os.Getenv("RESTSQL_RATE_LIMIT"); val != "" {
		if r, err := strconv.Atoi(val); err == nil && r > 0 {
			rateLimit = r
		}
	}

	requestTimeout := 30
	if val := os.Getenv("RESTSQL_REQUEST_TIMEOUT"); val != "" {
		if t, err := strconv.Atoi(val); err == nil && t > 0 {
			requestTimeout = t
		}
	}

	var corsOrigins []string
	if val := os.Getenv("RESTSQL_CORS_ORIGINS"); val != "" {
		corsOrigins = strings.Split(val, ",")
		for i := range corsOrigins {
			corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
		}
	}

	maxQueryDepth := 5
	if val := os.Getenv("RESTSQL_MAX_QUERY_DEPTH"); val != "" {
		if d, err := strconv.Atoi(val); err == nil && d > 0 {
			maxQueryDepth = d
		}
	}

	maxQueryLimit := 1000
	if val := os.Getenv("RESTSQL_MAX_QUERY_LIMIT"); val != "" {
		if l, err := strconv.Atoi(val); err == nil && l >= 0 {
			maxQueryLimit = l
		}
	}

	defaultLimit := 100
	if val := os.Getenv("RESTSQL_DEFAULT_LIMIT"); val != "" {
		if l, err := strconv.Atoi(val); err == nil && l >= 0 {
			defaultLimit = l
		}
	}

	return Config{
		Port: getEnv("PORT", ":8080"),

		Dialect: getEnv("RESTSQL_DIALECT", "sqlite"),
		DSN:     getEnv("RESTSQL_DSN", "file:restsqldata/primary.db"),

		SchemaName:  os.Getenv("RESTSQL_SCHEMA_NAME"),
		SchemaPath:  os.Getenv("RESTSQL_SCHEMA_PATH"),
		DefaultRole: os.Getenv("RESTSQL_DEFAULT_ROLE"),

		MaxRequestBody: 1 << 20, // 1MB
		MaxQueryDepth:  maxQueryDepth,
		MaxQueryLimit:  maxQueryLimit,
		DefaultLimit:   defaultLimit,

		APIKey:           os.Getenv("RESTSQL_API_KEY"),
		RateLimitEnabled: rateLimitEnabled,
		RateLimit:        rateLimit,
		CORSOrigins:      corsOrigins,
		RequestTimeout:   requestTimeout,

		PreRequestSchema:   getEnv("RESTSQL_PRE_REQUEST_SCHEMA", "public"),
		PreRequestFunction: os.Getenv("RESTSQL_PRE_REQUEST_FUNCTION"),
	}
}

// getEnv returns the environment variable value or a default if not set.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
