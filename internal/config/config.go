package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server, the bot and supporting services.
type Config struct {
	APIListenAddr string
	APIBaseURL    string
	LogLevel      string

	RequestTimeout time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicateFreeModel    string
	ReplicatePremiumModel string

	AirtableAPIKey    string
	AirtableBaseID    string
	AirtableTableName string

	LoopsAPIKey string

	LemonSqueezyAPIKey      string
	LemonSqueezyBaseURL     string
	LemonSqueezyProductID   string
	LemonSqueezyCheckoutURL string

	Web3FormsKey string

	MySQLDSN string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	RateLimitQuota   int
	RateLimitWindow  time.Duration
	APIRatePerMinute int
	ClientStateDir   string

	TelegramBotToken string
}

// Load reads configuration from environment variables, applying sane defaults.
// Provider credentials are not required here: the API presence-checks them per request.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultAPIBaseURL = "http://localhost:8080"

	cfg := Config{
		APIListenAddr:           getEnv("API_LISTEN_ADDR", ":8080"),
		APIBaseURL:              normalizeBaseURL(getEnv("API_BASE_URL", defaultAPIBaseURL), defaultAPIBaseURL),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		RequestTimeout:          time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		OpenAIBaseURL:           os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ReplicateBaseURL:        normalizeBaseURL(getEnv("REPLICATE_BASE_URL", "https://api.replicate.com"), "https://api.replicate.com"),
		ReplicateFreeModel:      getEnv("REPLICATE_FREE_MODEL", "black-forest-labs/flux-schnell"),
		ReplicatePremiumModel:   getEnv("REPLICATE_PREMIUM_MODEL", "black-forest-labs/flux-dev"),
		AirtableBaseID:          os.Getenv("AIRTABLE_BASE_ID"),
		AirtableTableName:       getEnv("AIRTABLE_TABLE_NAME", "Generations"),
		LemonSqueezyBaseURL:     normalizeBaseURL(getEnv("LEMON_SQUEEZY_BASE_URL", "https://api.lemonsqueezy.com"), "https://api.lemonsqueezy.com"),
		LemonSqueezyProductID:   os.Getenv("LEMON_SQUEEZY_PRODUCT_ID"),
		LemonSqueezyCheckoutURL: os.Getenv("LEMON_SQUEEZY_CHECKOUT_URL"),
		S3Endpoint:              getEnv("S3_ENDPOINT", ""),
		S3Region:                os.Getenv("S3_REGION"),
		S3AccessKey:             os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:             os.Getenv("S3_SECRET_KEY"),
		S3Bucket:                os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:         os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:          getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:                getEnv("S3_PREFIX", "generations"),
		RateLimitQuota:          getInt("RATE_LIMIT_QUOTA", 5),
		RateLimitWindow:         getDuration("RATE_LIMIT_WINDOW", 24*time.Hour),
		APIRatePerMinute:        getInt("API_RATE_PER_MINUTE", 0),
		ClientStateDir:          getEnv("CLIENT_STATE_DIR", filepath.Join("data", "clients")),
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.ReplicateAPIToken = os.Getenv("REPLICATE_API_TOKEN")
	cfg.AirtableAPIKey = os.Getenv("AIRTABLE_API_KEY")
	cfg.LoopsAPIKey = os.Getenv("LOOPS_API_KEY")
	cfg.LemonSqueezyAPIKey = os.Getenv("LEMON_SQUEEZY_API_KEY")
	cfg.Web3FormsKey = os.Getenv("WEB3FORMS_KEY")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if cfg.RateLimitQuota <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_QUOTA must be positive, got %d", cfg.RateLimitQuota)
	}
	if cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", cfg.RateLimitWindow)
	}

	return cfg, nil
}

// ValidateBot reports the variables the Telegram shell cannot start without.
func (c Config) ValidateBot() error {
	var missing []string
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// AirtableEnabled reports whether every piece of the logging store configuration is present.
func (c Config) AirtableEnabled() bool {
	return c.AirtableAPIKey != "" && c.AirtableBaseID != "" && c.AirtableTableName != ""
}

// S3Enabled reports whether inline images can be archived to object storage.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3PublicBaseURL != ""
}

// BillingEnabled reports whether subscription checks can reach the billing provider.
func (c Config) BillingEnabled() bool {
	return c.LemonSqueezyAPIKey != "" && c.LemonSqueezyProductID != ""
}

func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// loadEnvFile loads the first env file found. Running without one is fine:
// serverless-style deployments inject variables directly.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
