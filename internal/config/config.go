package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	Media MediaConfig
	Call  CallConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// MediaConfig configures short-lived media-channel credentials handed to
// clients once a call is accepted.
type MediaConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
}

// CallConfig carries the call-session policy knobs.
//
// SoftEndThresholdSeconds and the grace window are observed product policy,
// not derived invariants; keep them configurable.
type CallConfig struct {
	// DefaultCoinPrice and DefaultDurationSeconds seed platform settings when
	// no settings row exists yet.
	DefaultCoinPrice       int64
	DefaultDurationSeconds int

	RingTimeout      time.Duration
	GracePeriod      time.Duration
	ClearSignalDelay time.Duration

	// SoftEndThresholdSeconds: a leave with more remaining time than this is
	// an interruption (rejoin allowed); at or below it the call hard-ends.
	SoftEndThresholdSeconds int

	// StalenessWindow bounds how long a call may sit in pending/ringing/accepted
	// before the sweeper force-ends it (safety net after a process restart).
	StalenessWindow time.Duration
	SweepInterval   time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Media.TokenSecret = os.Getenv("MEDIA_TOKEN_SECRET")
	c.Media.TokenTTL = optDuration("MEDIA_TOKEN_TTL")

	c.Call.DefaultCoinPrice = optInt64("CALL_DEFAULT_COIN_PRICE")
	c.Call.DefaultDurationSeconds = optInt("CALL_DEFAULT_DURATION_SECONDS")
	c.Call.RingTimeout = optDuration("CALL_RING_TIMEOUT")
	c.Call.GracePeriod = optDuration("CALL_GRACE_PERIOD")
	c.Call.ClearSignalDelay = optDuration("CALL_CLEAR_SIGNAL_DELAY")
	c.Call.SoftEndThresholdSeconds = optInt("CALL_SOFT_END_THRESHOLD_SECONDS")
	c.Call.StalenessWindow = optDuration("CALL_STALENESS_WINDOW")
	c.Call.SweepInterval = optDuration("CALL_SWEEP_INTERVAL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Media.TokenSecret == "" {
		errs = append(errs, errors.New("MEDIA_TOKEN_SECRET is required"))
	}
	if c.Media.TokenTTL <= 0 {
		c.Media.TokenTTL = 30 * time.Minute
	}

	c.Call = c.Call.withDefaults()
	if c.Call.DefaultCoinPrice <= 0 {
		errs = append(errs, fmt.Errorf("CALL_DEFAULT_COIN_PRICE must be positive, got %d", c.Call.DefaultCoinPrice))
	}
	if c.Call.DefaultDurationSeconds <= c.Call.SoftEndThresholdSeconds {
		errs = append(errs, errors.New("CALL_DEFAULT_DURATION_SECONDS must exceed CALL_SOFT_END_THRESHOLD_SECONDS"))
	}

	return joinErrors(errs)
}

func (c CallConfig) withDefaults() CallConfig {
	out := c
	if out.DefaultCoinPrice == 0 {
		out.DefaultCoinPrice = 500
	}
	if out.DefaultDurationSeconds == 0 {
		out.DefaultDurationSeconds = 300
	}
	if out.RingTimeout <= 0 {
		out.RingTimeout = 30 * time.Second
	}
	if out.GracePeriod <= 0 {
		out.GracePeriod = 60 * time.Second
	}
	if out.ClearSignalDelay <= 0 {
		out.ClearSignalDelay = 2 * time.Second
	}
	if out.SoftEndThresholdSeconds == 0 {
		out.SoftEndThresholdSeconds = 10
	}
	if out.StalenessWindow <= 0 {
		out.StalenessWindow = 10 * time.Minute
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = time.Minute
	}
	return out
}

// WithDefaults exposes the policy defaults for tests and direct service wiring.
func (c CallConfig) WithDefaults() CallConfig { return c.withDefaults() }

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optInt64(key string) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
