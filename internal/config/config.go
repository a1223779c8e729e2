package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the process needs, resolved once at startup.
// Components never read the environment themselves.
type Config struct {
	HTTPPort string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// AdminTokenHash is the bcrypt hash of the single shared admin secret.
	// Generate it with cmd/hashtoken.
	AdminTokenHash string

	// AppBaseURL is the externally reachable base URL, used for OAuth
	// redirects and for building public upload URLs.
	AppBaseURL string

	// OAuthStateSecret signs the short-lived OAuth state blob.
	OAuthStateSecret string

	// StorefrontTimeout bounds each per-store call during order search.
	StorefrontTimeout time.Duration

	UploadDir string

	KafkaBrokers []string
	AuditTopic   string

	Debug bool
}

// Load reads .env (if present) and the environment, and enforces what the
// HTTP server cannot run without. The .env lookup walks a few levels up so
// tests running from package directories still find it.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if cfg.AdminTokenHash == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN_HASH is required")
	}
	if cfg.OAuthStateSecret == "" {
		return nil, fmt.Errorf("OAUTH_STATE_SECRET is required")
	}

	return cfg, nil
}

// LoadConsumer resolves the same configuration without the server-only
// requirements: the audit consumer needs brokers and the topic, not the admin
// token hash or the OAuth state secret.
func LoadConsumer() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	loadDotenv()

	cfg := &Config{
		HTTPPort:          getenv("HTTP_PORT", "9000"),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBUser:            getenv("POSTGRES_USER", "postgres"),
		DBPassword:        getenv("POSTGRES_PASSWORD", "postgres"),
		DBName:            getenv("POSTGRES_DB", "returns_portal"),
		AdminTokenHash:    os.Getenv("ADMIN_TOKEN_HASH"),
		AppBaseURL:        strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:9000"), "/"),
		OAuthStateSecret:  os.Getenv("OAUTH_STATE_SECRET"),
		UploadDir:         getenv("UPLOAD_DIR", "uploads"),
		AuditTopic:        getenv("AUDIT_TOPIC", "audit_logs"),
		Debug:             os.Getenv("DEBUG") == "true",
		StorefrontTimeout: 10 * time.Second,
	}

	port, err := strconv.Atoi(getenv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.DBPort = port

	if v := os.Getenv("STOREFRONT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STOREFRONT_TIMEOUT: %w", err)
		}
		cfg.StorefrontTimeout = d
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg, nil
}

// DSN builds the postgres connection string for pgxpool.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func loadDotenv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	for _, dir := range []string{wd, filepath.Join(wd, ".."), filepath.Join(wd, "..", "..")} {
		if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
			return
		}
	}
	for _, dir := range []string{wd, filepath.Join(wd, ".."), filepath.Join(wd, "..", "..")} {
		if err := godotenv.Load(filepath.Join(dir, ".example.env")); err == nil {
			return
		}
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
