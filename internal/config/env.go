package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvConfig holds the environment-variable driven configuration.
type EnvConfig struct {
	Port           int
	Env            string
	AccessKey      string
	TrustedProxies []string

	// Ledger provider (credit balance system of record)
	LedgerBaseURL      string
	LedgerAPIKey       string
	WebhookSecret      string
	LedgerTimeoutMS    int
	LedgerMaxRetries   int
	DefaultCreditLimit int

	// Search index
	SearchEndpoint  string
	SearchIndexName string
	SearchAPIKey    string
	SearchTopN      int

	// LLM provider
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMMaxTokens    int
	LLMTemperature  float64
	MaxToolRounds   int
	LLMTimeoutMS    int

	EnableCORS bool
	CORSOrigin string

	HealthCheckPath string

	// Log file settings
	LogDir       string
	LogFile      string
	LogMaxAge    int
	LogToConsole bool

	// Local reconciliation log
	UsageLogPath string
}

// NewEnvConfig reads configuration from the environment.
func NewEnvConfig() *EnvConfig {
	env := getEnv("ENV", "")
	if env == "" {
		env = getEnv("NODE_ENV", "development")
	}

	return &EnvConfig{
		Port:           getEnvAsInt("PORT", 3000),
		Env:            env,
		AccessKey:      getEnv("ACCESS_KEY", "your-access-key"),
		TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),

		LedgerBaseURL:      getEnv("FLEXPRICE_BASE_URL", "https://api.flexprice.com"),
		LedgerAPIKey:       getEnv("FLEXPRICE_API_KEY", ""),
		WebhookSecret:      getEnv("FLEXPRICE_WEBHOOK_SECRET", ""),
		LedgerTimeoutMS:    getEnvAsInt("LEDGER_TIMEOUT_MS", 10000),
		LedgerMaxRetries:   getEnvAsInt("LEDGER_MAX_RETRIES", 2),
		DefaultCreditLimit: getEnvAsInt("DEFAULT_CREDIT_LIMIT", 100),

		SearchEndpoint:  getEnv("SEARCH_ENDPOINT", ""),
		SearchIndexName: getEnv("SEARCH_INDEX_NAME", "research-sources"),
		SearchAPIKey:    getEnv("SEARCH_API_KEY", ""),
		SearchTopN:      getEnvAsInt("SEARCH_TOP_N", 5),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://api.anthropic.com"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "claude-3-5-sonnet-20241022"),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 2000),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		MaxToolRounds:  getEnvAsInt("MAX_TOOL_ROUNDS", 5),
		LLMTimeoutMS:   getEnvAsInt("LLM_TIMEOUT_MS", 300000),

		EnableCORS: getEnv("ENABLE_CORS", "true") != "false",
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		HealthCheckPath: getEnv("HEALTH_CHECK_PATH", "/health"),

		LogDir:       getEnv("LOG_DIR", "logs"),
		LogFile:      getEnv("LOG_FILE", "app.log"),
		LogMaxAge:    getEnvAsInt("LOG_MAX_AGE", 30),
		LogToConsole: getEnv("LOG_TO_CONSOLE", "true") != "false",

		UsageLogPath: getEnv("USAGE_LOG_PATH", ".config/usage_events.db"),
	}
}

// IsDevelopment reports whether the service runs in development mode.
func (c *EnvConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction reports whether the service runs in production mode.
func (c *EnvConfig) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
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
