package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeAssistants = "assistants"
	ModeCompletion = "completion"
)

type Config struct {
	Port          string
	AllowedOrigin string
	WebhookPath   string
	// Assistant service
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	Mode            string
	AssistantID     string
	Model           string
	SystemPrompt    string
	PollInterval    time.Duration
	MaxWait         time.Duration
	CancelOnTimeout bool
	// Output keys populated with the answer
	ResponseFields []string
	ResetKeywords  []string
	// Vehicle enrichment and the record lookup service
	VehicleEnrichment bool
	VehicleRulesFile  string
	LookupBaseURL     string
	LookupPublicKey   string
	LookupToken       string
	LookupTimeout     time.Duration
	// Conversation -> thread storage
	SessionStore  string
	SessionFile   string
	RedisURL      string
	SessionTTL    time.Duration
	DatabaseURL   string
	MigrationsDir string
	// Observability
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:              getEnvDefault("PORT", "8000"),
		AllowedOrigin:     getEnvDefault("ALLOWED_ORIGIN", "*"),
		WebhookPath:       getEnvDefault("WEBHOOK_PATH", "/walter"),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		Mode:              strings.ToLower(getEnvDefault("ASSISTANT_MODE", ModeAssistants)),
		AssistantID:       strings.TrimSpace(os.Getenv("ASSISTANT_ID")),
		Model:             getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		SystemPrompt:      os.Getenv("SYSTEM_PROMPT"),
		PollInterval:      getEnvDurationDefault("POLL_INTERVAL", 750*time.Millisecond),
		MaxWait:           time.Duration(getEnvIntDefault("MAX_WAIT_SECONDS", 25)) * time.Second,
		CancelOnTimeout:   getEnvBoolDefault("CANCEL_ON_TIMEOUT", false),
		ResponseFields:    getEnvListDefault("RESPONSE_FIELDS", []string{"answer", "reply"}),
		ResetKeywords:     getEnvListDefault("RESET_KEYWORDS", nil),
		VehicleEnrichment: getEnvBoolDefault("VEHICLE_ENRICHMENT", true),
		VehicleRulesFile:  os.Getenv("VEHICLE_RULES_FILE"),
		LookupBaseURL:     strings.TrimRight(os.Getenv("LOOKUP_BASE_URL"), "/"),
		LookupPublicKey:   os.Getenv("LOOKUP_PUBLIC_KEY"),
		LookupToken:       os.Getenv("LOOKUP_TOKEN"),
		LookupTimeout:     getEnvDurationDefault("LOOKUP_TIMEOUT", 8*time.Second),
		SessionStore:      strings.ToLower(getEnvDefault("SESSION_STORE", "memory")),
		SessionFile:       getEnvDefault("SESSION_FILE", "data/sessions.json"),
		RedisURL:          os.Getenv("REDIS_URL"),
		SessionTTL:        getEnvDurationDefault("SESSION_TTL", 0),
		DatabaseURL:       os.Getenv("DB_URL"),
		MigrationsDir:     getEnvDefault("MIGRATIONS_DIR", "./migrations"),
		LogLevel:          getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvDefault("LOG_FORMAT", "json"),
		MetricsEnabled:    getEnvBoolDefault("METRICS_ENABLED", true),
	}
}

// MissingError lists required settings that were not provided.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Validate reports values the webhook cannot work without. The server still
// starts with an invalid config and answers with a configuration fallback.
func (c Config) Validate() error {
	var missing []string
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.Mode {
	case ModeAssistants:
		if c.AssistantID == "" {
			missing = append(missing, "ASSISTANT_ID")
		}
	case ModeCompletion:
		if c.Model == "" {
			missing = append(missing, "OPENAI_MODEL")
		}
	default:
		return fmt.Errorf("unknown ASSISTANT_MODE %q", c.Mode)
	}
	if c.SessionStore == "redis" && c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.SessionStore == "postgres" && c.DatabaseURL == "" {
		missing = append(missing, "DB_URL")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// LookupEnabled reports whether vehicle lookups can be issued at all.
func (c Config) LookupEnabled() bool {
	return c.VehicleEnrichment && c.LookupBaseURL != ""
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// getEnvDurationDefault accepts Go durations ("750ms") or plain seconds ("0.75").
func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
