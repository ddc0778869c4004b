// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, the SQLite store path, the tower rules (target string, crash
// schedule, validation policies), the weekly cadence, and observability.
package config

import (
	"errors"
	"fmt"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-tower-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TowerConfig holds the construction rules shared by every room.
type TowerConfig struct {
	// Target is the string the rooms are collaboratively building.
	Target string
	// CrashSchedule lists, per crash count, the attempt length at which the
	// bot sabotages a post-completion rebuild. The last entry repeats
	// indefinitely once the schedule is exhausted.
	CrashSchedule []int
	// MinimalNotifyLen suppresses fall notifications for attempts shorter
	// than this; tiny towers reset silently.
	MinimalNotifyLen int

	// Validation policies.
	CheckUniqueness bool // one letter per participant
	CheckDeletion   bool // completion-time deleted-message probe
	CheckEdits      bool // edits of tower messages invalidate the attempt
	CheckVariants   bool // accept look-alikes while building, reject at the end
}

// CadenceConfig restricts building to one weekday when WeeklyMode is on.
type CadenceConfig struct {
	WeeklyMode bool         // TOWER_WEEKLY_MODE
	ActiveDay  time.Weekday // TOWER_ACTIVE_DAY (0=Sunday .. 6=Saturday)
}

// ProbeConfig points at the chat platform's message-existence endpoint used
// by the completion-time integrity check.
type ProbeConfig struct {
	BaseURL string        // PROBE_BASE_URL; empty disables the remote probe
	Token   string        // PROBE_TOKEN bearer token, if the platform needs one
	Timeout time.Duration // PROBE_TIMEOUT per completion check
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath  string // SQLite path
	Tower   TowerConfig
	Cadence CadenceConfig
	Probe   ProbeConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Dedupe
	DedupeTTL time.Duration // how long a processed update stays deduplicated

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "tower.db"),
		Tower: TowerConfig{
			Target:           getenv("TOWER_TARGET", "ITSWEDNESDAYMYDUDES!"),
			CrashSchedule:    getints("TOWER_CRASH_SCHEDULE", []int{3, 14, 12, 7, 3}),
			MinimalNotifyLen: getint("TOWER_MINIMAL_NOTIFY_LEN", 3),
			CheckUniqueness:  getbool("CHECK_UNIQUENESS", true),
			CheckDeletion:    getbool("CHECK_DELETION", true),
			CheckEdits:       getbool("CHECK_EDITS", true),
			CheckVariants:    getbool("CHECK_VARIANTS", true),
		},
		Cadence: CadenceConfig{
			WeeklyMode: getbool("TOWER_WEEKLY_MODE", true),
			ActiveDay:  time.Weekday(getint("TOWER_ACTIVE_DAY", int(time.Wednesday))),
		},
		Probe: ProbeConfig{
			BaseURL: getenv("PROBE_BASE_URL", ""),
			Token:   getenv("PROBE_TOKEN", ""),
			Timeout: getdur("PROBE_TIMEOUT", 5*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Dedupe
		DedupeTTL: getdur("DEDUPE_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-tower-backend"),
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
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	targetLen := len([]rune(cfg.Tower.Target))
	if strings.TrimSpace(cfg.Tower.Target) == "" {
		return cfg, errors.New("TOWER_TARGET must not be empty")
	}
	if len(cfg.Tower.CrashSchedule) == 0 {
		return cfg, errors.New("TOWER_CRASH_SCHEDULE must have at least one entry")
	}
	for _, n := range cfg.Tower.CrashSchedule {
		if n < 1 || n > targetLen {
			return cfg, fmt.Errorf("TOWER_CRASH_SCHEDULE entries must be in [1,%d]", targetLen)
		}
	}
	if cfg.Tower.MinimalNotifyLen < 0 {
		return cfg, errors.New("TOWER_MINIMAL_NOTIFY_LEN must be >= 0")
	}
	if cfg.Cadence.ActiveDay < time.Sunday || cfg.Cadence.ActiveDay > time.Saturday {
		return cfg, errors.New("TOWER_ACTIVE_DAY must be in [0,6]")
	}
	if cfg.Probe.Timeout <= 0 {
		return cfg, errors.New("PROBE_TIMEOUT must be > 0")
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
	if cfg.DedupeTTL <= 0 {
		return cfg, errors.New("DEDUPE_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
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

// getints parses a comma-separated list of integers, falling back to def when
// the variable is unset or any element fails to parse.
func getints(k string, def []int) []int {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	parts := splitCSV(v)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return def
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return def
	}
	return out
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
