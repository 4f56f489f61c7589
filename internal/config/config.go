// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// Todoist credentials, rule toggles, reminder policy knobs, rate limiting,
// and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "autodoist-events")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RuleFlags toggles individual webhook rules without redeploying.
type RuleFlags struct {
	RecurringClearComments bool // AUTODOIST_EVENTS_RULE_RECURRING_CLEAR_COMMENTS
	RecurringPurgeSubtasks bool // AUTODOIST_EVENTS_RULE_RECURRING_PURGE_SUBTASKS
	ReminderNotify         bool // AUTODOIST_EVENTS_RULE_REMINDER_NOTIFY
}

// ReminderConfig groups the settings of the reminder notification path:
// where to deliver, how to frame the message, and how often a given
// (task, mode) pair may fire.
type ReminderConfig struct {
	WebhookURL        string // AUTODOIST_EVENTS_REMINDER_WEBHOOK_URL
	WebhookToken      string // AUTODOIST_EVENTS_REMINDER_WEBHOOK_TOKEN
	RequireFocusLabel bool   // AUTODOIST_EVENTS_REMINDER_REQUIRE_FOCUS_LABEL
	CooldownMinutes   int    // AUTODOIST_EVENTS_REMINDER_COOLDOWN_MINUTES
	Timezone          string // AUTODOIST_EVENTS_REMINDER_TIMEZONE
	Channel           string // AUTODOIST_EVENTS_REMINDER_CHANNEL
	To                string // AUTODOIST_EVENTS_REMINDER_TO (recipient hint, optional)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Host              string        // bind address
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Todoist credentials and webhook auth
	APIToken         string // TODOIST_API_KEY
	WebhookSecret    string // TODOIST_CLIENT_SECRET (HMAC key for inbound deliveries)
	ClientID         string // TODOIST_CLIENT_ID (OAuth, optional)
	OAuthRedirectURI string // AUTODOIST_EVENTS_OAUTH_REDIRECT_URI (optional)

	// Storage
	DBPath string // SQLite path

	// Pipeline gates
	Enabled           bool     // master switch; off routes everything to ignored_disabled
	DryRun            bool     // plan but never touch the remote system
	Rules             RuleFlags
	AllowedUserIDs    []string // empty = all users
	AllowedProjectIDs []string // empty = all projects
	DeniedProjectIDs  []string // always wins over the allow list
	KeepMarkers       []string // comment prefixes that survive a clear
	MaxDeleteComments int      // per-delivery cap
	MaxDeleteSubtasks int      // per-delivery cap

	// Reminder / focus policy
	Reminder         ReminderConfig
	AllowedHourStart int // cron-source policy window, local hours
	AllowedHourEnd   int

	// Non-webhook surface auth
	AdminToken    string // AUTODOIST_EVENTS_ADMIN_TOKEN; unset disables admin reads
	InternalToken string // AUTODOIST_EVENTS_INTERNAL_TOKEN; unset disables /internal

	// Outbound HTTP (Todoist API + notification webhook)
	OutboundTimeout time.Duration

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Host:              getenv("AUTODOIST_EVENTS_HOST", "0.0.0.0"),
		Port:              getenv("AUTODOIST_EVENTS_PORT", "8081"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Todoist credentials
		APIToken:         getenv("TODOIST_API_KEY", ""),
		WebhookSecret:    getenv("TODOIST_CLIENT_SECRET", ""),
		ClientID:         getenv("TODOIST_CLIENT_ID", ""),
		OAuthRedirectURI: getenv("AUTODOIST_EVENTS_OAUTH_REDIRECT_URI", ""),

		// Storage
		DBPath: getenv("AUTODOIST_EVENTS_DB_PATH", "events.sqlite"),

		// Pipeline gates
		Enabled: getbool("AUTODOIST_EVENTS_ENABLED", true),
		DryRun:  getbool("AUTODOIST_EVENTS_DRY_RUN", false),
		Rules: RuleFlags{
			RecurringClearComments: getbool("AUTODOIST_EVENTS_RULE_RECURRING_CLEAR_COMMENTS", true),
			RecurringPurgeSubtasks: getbool("AUTODOIST_EVENTS_RULE_RECURRING_PURGE_SUBTASKS", false),
			ReminderNotify:         getbool("AUTODOIST_EVENTS_RULE_REMINDER_NOTIFY", false),
		},
		AllowedUserIDs:    splitCSV(getenv("AUTODOIST_EVENTS_ALLOWED_USER_IDS", "")),
		AllowedProjectIDs: splitCSV(getenv("AUTODOIST_EVENTS_ALLOWED_PROJECT_IDS", "")),
		DeniedProjectIDs:  splitCSV(getenv("AUTODOIST_EVENTS_DENIED_PROJECT_IDS", "")),
		KeepMarkers:       splitCSV(getenv("AUTODOIST_EVENTS_KEEP_MARKERS", "[openclaw:plan]")),
		MaxDeleteComments: getint("AUTODOIST_EVENTS_MAX_DELETE_COMMENTS", 200),
		MaxDeleteSubtasks: getint("AUTODOIST_EVENTS_MAX_DELETE_SUBTASKS", 200),

		// Reminder / focus policy
		Reminder: ReminderConfig{
			WebhookURL:        getenv("AUTODOIST_EVENTS_REMINDER_WEBHOOK_URL", ""),
			WebhookToken:      getenv("AUTODOIST_EVENTS_REMINDER_WEBHOOK_TOKEN", ""),
			RequireFocusLabel: getbool("AUTODOIST_EVENTS_REMINDER_REQUIRE_FOCUS_LABEL", false),
			CooldownMinutes:   getint("AUTODOIST_EVENTS_REMINDER_COOLDOWN_MINUTES", 60),
			Timezone:          getenv("AUTODOIST_EVENTS_REMINDER_TIMEZONE", "America/Chicago"),
			Channel:           getenv("AUTODOIST_EVENTS_REMINDER_CHANNEL", "discord"),
			To:                getenv("AUTODOIST_EVENTS_REMINDER_TO", ""),
		},
		AllowedHourStart: getint("AUTODOIST_EVENTS_ALLOWED_HOUR_START", 9),
		AllowedHourEnd:   getint("AUTODOIST_EVENTS_ALLOWED_HOUR_END", 18),

		// Non-webhook surface auth
		AdminToken:    getenv("AUTODOIST_EVENTS_ADMIN_TOKEN", ""),
		InternalToken: getenv("AUTODOIST_EVENTS_INTERNAL_TOKEN", ""),

		// Outbound HTTP
		OutboundTimeout: secondsDur(getfloat("AUTODOIST_EVENTS_TIMEOUT_S", 10.0)),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "autodoist-events"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return cfg, errors.New("TODOIST_API_KEY must not be empty")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return cfg, errors.New("TODOIST_CLIENT_SECRET must not be empty")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("AUTODOIST_EVENTS_PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("AUTODOIST_EVENTS_DB_PATH must not be empty")
	}
	if cfg.MaxDeleteComments <= 0 || cfg.MaxDeleteSubtasks <= 0 {
		return cfg, errors.New("delete caps must be > 0")
	}
	if cfg.Reminder.CooldownMinutes < 0 {
		return cfg, errors.New("AUTODOIST_EVENTS_REMINDER_COOLDOWN_MINUTES must be >= 0")
	}
	if cfg.AllowedHourStart < 0 || cfg.AllowedHourEnd > 24 || cfg.AllowedHourStart >= cfg.AllowedHourEnd {
		return cfg, errors.New("allowed hours must satisfy 0 <= start < end <= 24")
	}
	if _, err := time.LoadLocation(cfg.Reminder.Timezone); err != nil {
		return cfg, errors.New("AUTODOIST_EVENTS_REMINDER_TIMEZONE must be a valid IANA zone")
	}
	if cfg.OutboundTimeout <= 0 {
		return cfg, errors.New("AUTODOIST_EVENTS_TIMEOUT_S must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Location resolves the reminder timezone, falling back to UTC if the zone
// cannot be loaded at runtime. Load has already validated it once, so the
// fallback only triggers when the tz database changed underneath us.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminder.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func secondsDur(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
