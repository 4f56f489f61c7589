package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	_ "time/tzdata" // zone lookups must work on hosts without a tz database
)

// setRequired provides the two credentials Load refuses to run without.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TODOIST_API_KEY", "api-token")
	t.Setenv("TODOIST_CLIENT_SECRET", "hook-secret")
}

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	setRequired(t)

	// Server
	t.Setenv("AUTODOIST_EVENTS_HOST", "127.0.0.1")
	t.Setenv("AUTODOIST_EVENTS_PORT", "9099")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")

	// Storage / pipeline
	t.Setenv("AUTODOIST_EVENTS_DB_PATH", "events.sqlite")
	t.Setenv("AUTODOIST_EVENTS_ENABLED", "0")
	t.Setenv("AUTODOIST_EVENTS_DRY_RUN", "1")
	t.Setenv("AUTODOIST_EVENTS_RULE_RECURRING_PURGE_SUBTASKS", "true")
	t.Setenv("AUTODOIST_EVENTS_ALLOWED_USER_IDS", " u1 , ,u2 ")
	t.Setenv("AUTODOIST_EVENTS_DENIED_PROJECT_IDS", "p9")
	t.Setenv("AUTODOIST_EVENTS_KEEP_MARKERS", "[keep],[pin]")
	t.Setenv("AUTODOIST_EVENTS_MAX_DELETE_COMMENTS", "50")

	// Reminder
	t.Setenv("AUTODOIST_EVENTS_REMINDER_WEBHOOK_URL", "https://hooks.example/agent")
	t.Setenv("AUTODOIST_EVENTS_REMINDER_COOLDOWN_MINUTES", "15")
	t.Setenv("AUTODOIST_EVENTS_REMINDER_TIMEZONE", "UTC")
	t.Setenv("AUTODOIST_EVENTS_REMINDER_CHANNEL", "slack")

	// Outbound timeout in seconds (float)
	t.Setenv("AUTODOIST_EVENTS_TIMEOUT_S", "2.5")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Host != "127.0.0.1" ||
		cfg.Port != "9099" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging
	if cfg.LogLevel != "warn" || !cfg.LogPretty {
		t.Fatalf("logging unexpected: %+v", cfg)
	}

	// Credentials
	if cfg.APIToken != "api-token" || cfg.WebhookSecret != "hook-secret" {
		t.Fatalf("credentials unexpected: %+v", cfg)
	}

	// Pipeline gates
	if cfg.Enabled || !cfg.DryRun {
		t.Fatalf("enabled/dry-run unexpected: %+v", cfg)
	}
	if !cfg.Rules.RecurringClearComments || !cfg.Rules.RecurringPurgeSubtasks || cfg.Rules.ReminderNotify {
		t.Fatalf("rule flags unexpected: %+v", cfg.Rules)
	}
	if !reflect.DeepEqual(cfg.AllowedUserIDs, []string{"u1", "u2"}) {
		t.Fatalf("allowed users unexpected: %#v", cfg.AllowedUserIDs)
	}
	if !reflect.DeepEqual(cfg.DeniedProjectIDs, []string{"p9"}) {
		t.Fatalf("denied projects unexpected: %#v", cfg.DeniedProjectIDs)
	}
	if !reflect.DeepEqual(cfg.KeepMarkers, []string{"[keep]", "[pin]"}) {
		t.Fatalf("keep markers unexpected: %#v", cfg.KeepMarkers)
	}
	if cfg.MaxDeleteComments != 50 || cfg.MaxDeleteSubtasks != 200 {
		t.Fatalf("delete caps unexpected: %+v", cfg)
	}

	// Reminder
	if cfg.Reminder.WebhookURL != "https://hooks.example/agent" ||
		cfg.Reminder.CooldownMinutes != 15 ||
		cfg.Reminder.Timezone != "UTC" ||
		cfg.Reminder.Channel != "slack" {
		t.Fatalf("reminder unexpected: %+v", cfg.Reminder)
	}

	// Outbound timeout
	if cfg.OutboundTimeout != 2500*time.Millisecond {
		t.Fatalf("outbound timeout unexpected: %v", cfg.OutboundTimeout)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	t.Run("missing TODOIST_API_KEY", func(t *testing.T) {
		t.Setenv("TODOIST_CLIENT_SECRET", "s")
		if _, err := Load(); err == nil || !containsErr(err, "TODOIST_API_KEY") {
			t.Fatalf("expected TODOIST_API_KEY validation error, got: %v", err)
		}
	})
	t.Run("missing TODOIST_CLIENT_SECRET", func(t *testing.T) {
		t.Setenv("TODOIST_API_KEY", "k")
		if _, err := Load(); err == nil || !containsErr(err, "TODOIST_CLIENT_SECRET") {
			t.Fatalf("expected TODOIST_CLIENT_SECRET validation error, got: %v", err)
		}
	})
	t.Run("invalid LOG_LEVEL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("LOG_LEVEL", "verbose")
		if _, err := Load(); err == nil {
			t.Fatalf("expected LOG_LEVEL validation error")
		}
	})
	t.Run("empty port via spaces", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTODOIST_EVENTS_PORT", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "PORT must not be empty") {
			t.Fatalf("expected port validation error, got: %v", err)
		}
	})
	t.Run("non-positive timeouts", func(t *testing.T) {
		setRequired(t)
		t.Setenv("READ_TIMEOUT", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "timeouts must be positive") {
			t.Fatalf("expected timeouts validation error, got: %v", err)
		}
	})
	t.Run("max header bytes <= 0", func(t *testing.T) {
		setRequired(t)
		t.Setenv("MAX_HEADER_BYTES", "0")
		if _, err := Load(); err == nil || !containsErr(err, "MAX_HEADER_BYTES") {
			t.Fatalf("expected MAX_HEADER_BYTES validation error, got: %v", err)
		}
	})
	t.Run("empty db path", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTODOIST_EVENTS_DB_PATH", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "DB_PATH must not be empty") {
			t.Fatalf("expected DB_PATH validation error, got: %v", err)
		}
	})
	t.Run("non-positive delete cap", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTODOIST_EVENTS_MAX_DELETE_COMMENTS", "0")
		if _, err := Load(); err == nil || !containsErr(err, "delete caps") {
			t.Fatalf("expected delete caps validation error, got: %v", err)
		}
	})
	t.Run("negative cooldown", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTODOIST_EVENTS_REMINDER_COOLDOWN_MINUTES", "-1")
		if _, err := Load(); err == nil || !containsErr(err, "COOLDOWN_MINUTES") {
			t.Fatalf("expected cooldown validation error, got: %v", err)
		}
	})
	t.Run("inverted hour window", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTODOIST_EVENTS_ALLOWED_HOUR_START", "19")
		t.Setenv("AUTODOIST_EVENTS_ALLOWED_HOUR_END", "9")
		if _, err := Load(); err == nil || !containsErr(err, "allowed hours") {
			t.Fatalf("expected hour window validation error, got: %v", err)
		}
	})
	t.Run("bogus timezone", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTODOIST_EVENTS_REMINDER_TIMEZONE", "Not/AZone")
		if _, err := Load(); err == nil || !containsErr(err, "REMINDER_TIMEZONE") {
			t.Fatalf("expected timezone validation error, got: %v", err)
		}
	})
	t.Run("non-positive outbound timeout", func(t *testing.T) {
		setRequired(t)
		t.Setenv("AUTODOIST_EVENTS_TIMEOUT_S", "0")
		if _, err := Load(); err == nil || !containsErr(err, "TIMEOUT_S") {
			t.Fatalf("expected outbound timeout validation error, got: %v", err)
		}
	})
	t.Run("rate rps negative", func(t *testing.T) {
		setRequired(t)
		t.Setenv("RATE_RPS", "-1")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_RPS") {
			t.Fatalf("expected RATE_RPS validation error, got: %v", err)
		}
	})
	t.Run("rate burst < 1", func(t *testing.T) {
		setRequired(t)
		t.Setenv("RATE_BURST", "0")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_BURST") {
			t.Fatalf("expected RATE_BURST validation error, got: %v", err)
		}
	})
	t.Run("hsts max age negative", func(t *testing.T) {
		setRequired(t)
		t.Setenv("HSTS_MAX_AGE", "-1s")
		if _, err := Load(); err == nil || !containsErr(err, "HSTS_MAX_AGE") {
			t.Fatalf("expected HSTS_MAX_AGE validation error, got: %v", err)
		}
	})
	t.Run("otel sample ratio out of range", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.5")
		if _, err := Load(); err == nil || !containsErr(err, "OTEL_TRACES_SAMPLER_ARG") {
			t.Fatalf("expected OTEL_TRACES_SAMPLER_ARG validation error, got: %v", err)
		}
	})
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	c := Config{Reminder: ReminderConfig{Timezone: "Nope/Nowhere"}}
	if loc := c.Location(); loc != time.UTC {
		t.Fatalf("Location() = %v; want UTC fallback", loc)
	}
	c.Reminder.Timezone = "UTC"
	if loc := c.Location(); loc.String() != "UTC" {
		t.Fatalf("Location() = %v; want UTC", loc)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + config_strconv(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + config_strconv(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_secondsDur(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	if secondsDur(10) != 10*time.Second {
		t.Fatalf("secondsDur(10) failed")
	}
	if secondsDur(0.5) != 500*time.Millisecond {
		t.Fatalf("secondsDur(0.5) failed")
	}
}

// small helper (avoid fmt just for ints)
func config_strconv(i int) string { return string('a' + rune(i)) }

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("AUTODOIST_EVENTS_PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
