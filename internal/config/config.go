package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Server and client share one config type; each binary reads the fields it needs.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration
	RefreshTokenDur   time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SNSRegion      string
	GoogleClientID string

	AllowedOrigins []string // CORS allowed origins

	// Server-side cooldown between confirmation resends for one account.
	ResendCooldown time.Duration

	Client ClientConfig
}

// ClientConfig drives the verification wait flow and the consistency monitor.
// All timings are injectable so tests can shrink them.
type ClientConfig struct {
	APIBaseURL string
	SignalDir  string // shared durable key/value directory, per OS user

	PollInterval  time.Duration // cadence of automatic verification checks
	WaitTimeout   time.Duration // wall-clock bound on the whole wait
	RedirectDelay time.Duration // pause after "verified" so the success view renders

	MonitorInitialDelay time.Duration
	MonitorInterval     time.Duration
	QuietPeriod         time.Duration // suppress consistency checks this long after input
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users             string
	Sessions          string
	Devices           string
	Profiles          string
	UserVerifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:             getEnv("DYNAMO_TABLE_USERS", "users"),
			Sessions:          getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			Devices:           getEnv("DYNAMO_TABLE_DEVICES", "devices"),
			Profiles:          getEnv("DYNAMO_TABLE_PROFILES", "profiles"),
			UserVerifications: getEnv("DYNAMO_TABLE_USER_VERIFICATIONS", "user_verifications"),
		},
		S3BucketName: getEnv("S3_BUCKET_NAME", "huddleup-avatars"),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		RefreshTokenDur:   time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRY_DAYS", 30)) * 24 * time.Hour,

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@huddleup.app"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SNSRegion:      getEnv("SNS_REGION", "us-east-1"),
		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		ResendCooldown: getEnvDuration("RESEND_COOLDOWN", 60*time.Second),

		Client: ClientConfig{
			APIBaseURL: getEnv("API_BASE_URL", "http://localhost:3000"),
			SignalDir:  getEnv("SIGNAL_DIR", defaultSignalDir()),

			PollInterval:  getEnvDuration("VERIFY_POLL_INTERVAL", 3*time.Second),
			WaitTimeout:   getEnvDuration("VERIFY_WAIT_TIMEOUT", 120*time.Second),
			RedirectDelay: getEnvDuration("VERIFY_REDIRECT_DELAY", 1500*time.Millisecond),

			MonitorInitialDelay: getEnvDuration("MONITOR_INITIAL_DELAY", 5*time.Second),
			MonitorInterval:     getEnvDuration("MONITOR_INTERVAL", 5*time.Minute),
			QuietPeriod:         getEnvDuration("MONITOR_QUIET_PERIOD", 30*time.Second),
		},
	}
}

func defaultSignalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "huddleup-signals")
	}
	return filepath.Join(home, ".huddleup", "signals")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
