package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	// Secret used to sign payment vouchers. Must be stable across restarts
	// or outstanding vouchers become unredeemable.
	VoucherSecret string

	// Rail selects the LNbits-style HTTP payment rail when both URL and API
	// key are present; otherwise the simulated rail is used.
	RailURL           string
	RailAPIKey        string
	RailInvoiceExpiry int64

	// UpstreamTimeoutSeconds bounds one proxied round-trip. The forward
	// context is detached from the client request so a disconnect never
	// cancels billing.
	UpstreamTimeoutSeconds int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Challenge issuance rate limiting. Requires Redis; without it the
	// limiter passes everything through.
	RateLimitEnabled    bool
	ChallengeRatePerMin int64
	ChallengeBurst      int64

	PlatformPayoutAddress string
	RegistrationOpen      bool
	SeedDemo              bool

	SchedulerEnabled         bool
	SchedulerIntervalSeconds int64
	SchedulerJobs            string
	SweepIntervalSeconds     int64

	MetricsPush MetricsPushConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// MetricsPushConfig configures the optional settlement metrics push.
type MetricsPushConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	IntervalSeconds int64
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewFeeConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "satgate"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),
		VoucherSecret: strings.TrimSpace(getenv("VOUCHER_SECRET", "")),

		RailURL:           strings.TrimSpace(getenv("RAIL_URL", "")),
		RailAPIKey:        strings.TrimSpace(getenv("RAIL_API_KEY", "")),
		RailInvoiceExpiry: getenvInt64("RAIL_INVOICE_EXPIRY_SECONDS", 3600),

		UpstreamTimeoutSeconds: getenvInt64("UPSTREAM_TIMEOUT_SECONDS", 30),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		RateLimitEnabled:    getenvBool("RATE_LIMIT_ENABLED", true),
		ChallengeRatePerMin: getenvInt64("CHALLENGE_RATE_PER_MIN", 30),
		ChallengeBurst:      getenvInt64("CHALLENGE_BURST", 10),

		PlatformPayoutAddress: strings.TrimSpace(getenv("PLATFORM_PAYOUT_ADDRESS", "")),
		RegistrationOpen:      getenvBool("REGISTRATION_OPEN", true),
		SeedDemo:              getenvBool("SEED_DEMO", false),

		SchedulerEnabled:         getenvBool("SCHEDULER_ENABLED", true),
		SchedulerIntervalSeconds: getenvInt64("SCHEDULER_INTERVAL_SECONDS", 60),
		SchedulerJobs:            strings.TrimSpace(getenv("SCHEDULER_JOBS", "")),
		SweepIntervalSeconds:     getenvInt64("SWEEP_INTERVAL_SECONDS", 3600),

		MetricsPush: MetricsPushConfig{
			Enabled:         getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:        strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:        strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken:       strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			IntervalSeconds: getenvInt64("METRICS_PUSH_INTERVAL_SECONDS", 60),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "satgate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
	}

	return cfg
}

// RailConfigured reports whether a real payment rail is configured.
func (c Config) RailConfigured() bool {
	return c.RailURL != "" && c.RailAPIKey != ""
}

// RedisConfigured reports whether a shared Redis is available.
func (c Config) RedisConfigured() bool {
	return c.RedisAddr != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
