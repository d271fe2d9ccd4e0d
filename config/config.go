package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - настройки процесса из окружения
type Config struct {
	Port           string
	Environment    string
	FrontendURL    string
	AllowedOrigins []string // FRONTEND_URL + ADDITIONAL_ALLOWED_ORIGINS

	LogLevel  string
	LogPretty bool

	StorageDriver string
	DatabaseURL   string
	QueryTimeout  time.Duration

	LLMAPIURL      string
	LLMAPIKey      string
	LLMModel       string
	LLMTimeout     time.Duration
	LLMMaxTokens   int
	LLMTemperature float64

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
}

// Production сообщает, что процесс запущен в продакшене
func (c *Config) Production() bool { return c.Environment == "production" }

// AuthEnabled - защищать ли API токеном
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// Отсутствие .env - не ошибка
	_ = godotenv.Load()

	env := getEnv("ENV", "development")
	cfg := &Config{
		Port:        getEnv("PORT", "3000"),
		Environment: env,
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StorageDriver: getEnv("STORAGE_DRIVER", "postgres"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		LLMAPIURL: strings.TrimRight(getEnv("LLM_API_URL", "https://api.openai.com/v1"), "/"),
		LLMAPIKey: getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
		LLMModel:  getEnv("LLM_MODEL", "gpt-4o-mini"),

		JWTSecret:         os.Getenv("JWT_SECRET_KEY"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = buildDSN()
	}
	cfg.AllowedOrigins = splitList(cfg.FrontendURL + "," + os.Getenv("ADDITIONAL_ALLOWED_ORIGINS"))

	var errs []error
	cfg.LogPretty = parseBool("LOG_PRETTY", env != "production", &errs)
	cfg.QueryTimeout = parseDuration("DB_QUERY_TIMEOUT", 5*time.Second, &errs)
	cfg.LLMTimeout = parseDuration("LLM_API_TIMEOUT", 30*time.Second, &errs)
	cfg.LLMMaxTokens = parseInt("LLM_MAX_TOKENS", 300, &errs)
	cfg.LLMTemperature = parseFloat("LLM_TEMPERATURE", 0.7, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.StorageDriver)
	}
	if _, err := url.ParseRequestURI(c.LLMAPIURL); err != nil {
		return fmt.Errorf("invalid LLM_API_URL: %w", err)
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.AuthEnabled() && (c.AdminEmail == "" || c.AdminPasswordHash == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD_HASH are required when JWT_SECRET_KEY is set")
	}
	return nil
}

// ─────────────────────────────── helpers

func buildDSN() string {
	host := getEnv("PG_HOST", "localhost")
	port := getEnv("PG_PORT", "5432")
	user := getEnv("PG_USER", "postgres")
	password := os.Getenv("PG_PASSWORD") // может быть пустым
	dbname := getEnv("PG_DATABASE", "dealercrm")
	sslmode := getEnv("PG_SSL_MODE", "disable")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode,
	)
}

// splitList разбирает список через запятую, без пустых элементов и повторов
func splitList(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func parseDuration(key string, def time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s=%q: %w", key, raw, err))
		return def
	}
	return d
}

func parseInt(key string, def int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s=%q: %w", key, raw, err))
		return def
	}
	return n
}

func parseFloat(key string, def float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s=%q: %w", key, raw, err))
		return def
	}
	return f
}

func parseBool(key string, def bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s=%q: %w", key, raw, err))
		return def
	}
	return b
}
