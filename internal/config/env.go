package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	LogMode string

	DatabaseURL string
	SslCertPath string

	AIAPIKey   string
	GenModel   string
	EmbedModel string
	EmbedDim   int

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	JWTSecret string
	TokenTTL  time.Duration

	RedisAddr         string
	GenerationLockTTL time.Duration

	AllowedOrigins   []string
	MaxPDFTextLength int
	IngestWorkers    int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:    getEnv("PORT", "8080"),
		LogMode: getEnv("LOG_MODE", "production"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "virtual-teacher-docs"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		GenerationLockTTL: getEnvDuration("GENERATION_LOCK_TTL", 10*time.Minute),

		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		MaxPDFTextLength: getEnvInt("MAX_PDF_TEXT_LENGTH", 15000),
		IngestWorkers:    getEnvInt("INGEST_WORKERS", 2),
	}
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s not set", key))
		}
	}
	require("DATABASE_URL", c.DatabaseURL)
	require("GEMINI_API_KEY", c.AIAPIKey)
	require("JWT_SECRET", c.JWTSecret)
	require("PORT", c.Port)

	if c.MaxPDFTextLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PDF_TEXT_LENGTH must be positive, got %d", c.MaxPDFTextLength))
	}
	if c.IngestWorkers <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL))
	}
	return errors.Join(errs...)
}

// StorageEnabled reports whether S3 credentials are configured. Document
// upload and ingestion are only mounted when it is true.
func (c *Config) StorageEnabled() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != "" && c.BucketName != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
