package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// BudgetSettings holds the tunable parameters of the discount budget scheme.
// Every field is explicit; there is no untyped settings bag.
type BudgetSettings struct {
	// MonthlyAmount is the base allowance granted to each member per month.
	MonthlyAmount decimal.Decimal
	// DiscountPercent is the default discount applied while budget remains (0-100).
	DiscountPercent decimal.Decimal
	// CarryoverEnabled rolls unused budget into the next period.
	CarryoverEnabled bool
	// AllowedPlanIDs restricts the scheme to the listed membership plans.
	// An empty list means every plan is eligible.
	AllowedPlanIDs []string
	// LowBudgetThresholdPct marks a budget as "low" when remaining drops
	// below this percentage of the total.
	LowBudgetThresholdPct int
	// SettleOnProcessing also settles orders when they reach the processing
	// status, not only completed.
	SettleOnProcessing bool
	// DebugLogging enables verbose ledger logging.
	DebugLogging bool
}

// Config holds application configuration
type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Cache
	RedisAddr string
	CacheTTL  time.Duration

	// Membership platform
	PlatformAPIURL   string
	PlatformAPIToken string

	// Scheduler: cron expression (with seconds) for the monthly rollover.
	RolloverSchedule string

	Budget BudgetSettings
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "memberbudget"),
		DBPassword: getEnv("DB_PASSWORD", "memberbudget"),
		DBName:     getEnv("DB_NAME", "memberbudget"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		// Cache
		RedisAddr: getEnv("REDIS_ADDR", ""),
		CacheTTL:  getDurationEnv("CACHE_TTL", 5*time.Minute),

		// Membership platform
		PlatformAPIURL:   getEnv("PLATFORM_API_URL", ""),
		PlatformAPIToken: getEnv("PLATFORM_API_TOKEN", ""),

		// First day of every month at 00:05:00.
		RolloverSchedule: getEnv("ROLLOVER_SCHEDULE", "0 5 0 1 * *"),

		Budget: BudgetSettings{
			MonthlyAmount:         getDecimalEnv("BUDGET_MONTHLY_AMOUNT", "300.00"),
			DiscountPercent:       getDecimalEnv("BUDGET_DISCOUNT_PERCENT", "20"),
			CarryoverEnabled:      getBoolEnv("BUDGET_CARRYOVER_ENABLED", false),
			AllowedPlanIDs:        getListEnv("BUDGET_ALLOWED_PLAN_IDS"),
			LowBudgetThresholdPct: getIntEnv("BUDGET_LOW_THRESHOLD_PCT", 10),
			SettleOnProcessing:    getBoolEnv("BUDGET_SETTLE_ON_PROCESSING", false),
			DebugLogging:          getBoolEnv("BUDGET_DEBUG_LOGGING", false),
		},
	}

	expStr := getEnv("JWT_EXPIRES_IN", "24h")
	expDur, err := time.ParseDuration(expStr)
	if err != nil {
		log.Printf("Warning: invalid JWT_EXPIRES_IN value '%s', falling back to 24h\n", expStr)
		expDur = 24 * time.Hour
	}
	config.JWTExpirationDur = expDur

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %v\n", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getDecimalEnv(key, defaultValue string) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, value, defaultValue)
		parsed, _ = decimal.NewFromString(defaultValue)
	}
	return parsed
}

// getListEnv parses a comma-separated environment variable into a slice,
// dropping empty entries.
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
