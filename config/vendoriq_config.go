package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Environment string

	// Database
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Drive
	DriveRootFolder string

	// OCR service
	OCRBaseURL      string
	OCRServiceToken string
	OCRTimeoutSec   int

	// Analytics
	SnapshotTTLMin  int
	SpendSheetID    string
	SpendSheetRange string

	// Scheduler
	SchedulerEnabled bool

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "4002"),
		Environment: getEnv("ENV", "development"),

		// Database
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "vendoriq"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URI", ""),

		// Drive
		DriveRootFolder: getEnv("DRIVE_ROOT_FOLDER", "invoiceAutomation"),

		// OCR
		OCRBaseURL:      getEnv("OCR_SERVICE_URL", "http://localhost:4003"),
		OCRServiceToken: getEnv("OCR_SERVICE_TOKEN", ""),
		OCRTimeoutSec:   getEnvInt("OCR_TIMEOUT_SEC", 30),

		// Analytics
		SnapshotTTLMin:  getEnvInt("ANALYTICS_SNAPSHOT_TTL_MINUTES", 60),
		SpendSheetID:    getEnv("SPEND_SHEET_ID", ""),
		SpendSheetRange: getEnv("SPEND_SHEET_RANGE", "Invoices!A2:C"),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
