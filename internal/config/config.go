package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/AnshRaj112/serenify-auth/internal/ratelimit"
)

const minSecretLength = 32

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	Host        string `env:"HOST" envDefault:"http://localhost:8080"` // e.g. https://auth.serenify.app
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	OriginsRaw  string `env:"ALLOWED_ORIGINS"`
	// TrustProxy keys clients on X-Forwarded-For instead of the socket address.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	PostgresURI string `env:"POSTGRES_URI" envDefault:"postgres://localhost:5432/serenify_auth?sslmode=disable"`
	// Empty RedisURI keeps rate-limit counters in process memory.
	RedisURI string `env:"REDIS_URI"`
	// Empty MongoURI disables the security audit trail.
	MongoURI string `env:"MONGODB_URI"`

	JWTSecret          string        `env:"JWT_SECRET"`
	JWTRefreshSecret   string        `env:"JWT_REFRESH_SECRET"`
	JWTIssuer          string        `env:"JWT_ISSUER" envDefault:"serenify-auth"`
	AccessTTL          time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL         time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	RotateRefresh      bool          `env:"JWT_ROTATE_REFRESH" envDefault:"false"`
	MaxRefreshPerUser  int           `env:"MAX_REFRESH_TOKENS_PER_USER" envDefault:"10"`
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"12"`
	HashWorkers        int           `env:"HASH_WORKERS"`
	VerificationTTL    time.Duration `env:"VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	ResetTTL           time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	TokenCleanupPeriod time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"1h"`

	RateLimit RateLimitConfig

	ResendAPIKey  string  `env:"RESEND_API_KEY"`
	FromEmail     string  `env:"FROM_EMAIL" envDefault:"Serenify <noreply@serenify.app>"`
	EmailSendRate float64 `env:"EMAIL_SEND_RATE" envDefault:"2"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL" envDefault:"http://localhost:8080/api/auth/google"`

	CloudinaryName      string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`

	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL
	AllowedHost    string   // Hostname only for strict host check (production only)
}

// RateLimitConfig overrides the default policies. Zero values keep the default.
type RateLimitConfig struct {
	GeneralWindow           time.Duration `env:"RATE_LIMIT_GENERAL_WINDOW"`
	GeneralMax              int           `env:"RATE_LIMIT_GENERAL_MAX"`
	StrictWindow            time.Duration `env:"RATE_LIMIT_STRICT_WINDOW"`
	StrictMax               int           `env:"RATE_LIMIT_STRICT_MAX"`
	AuthWindow              time.Duration `env:"RATE_LIMIT_AUTH_WINDOW"`
	AuthMax                 int           `env:"RATE_LIMIT_AUTH_MAX"`
	PasswordResetWindow     time.Duration `env:"RATE_LIMIT_PASSWORD_RESET_WINDOW"`
	PasswordResetMax        int           `env:"RATE_LIMIT_PASSWORD_RESET_MAX"`
	EmailVerificationWindow time.Duration `env:"RATE_LIMIT_EMAIL_VERIFICATION_WINDOW"`
	EmailVerificationMax    int           `env:"RATE_LIMIT_EMAIL_VERIFICATION_MAX"`
	SweepInterval           time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"60s"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(cfg)
}

// LoadFrom builds a Config from vars only, ignoring the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.AllowedOrigins = allowedOrigins(cfg.OriginsRaw, cfg.FrontendURL)
	// host check is skipped outside production
	if cfg.IsProduction() {
		cfg.AllowedHost = hostname(cfg.Host)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted safely.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if len(c.JWTRefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters", minSecretLength))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_TTL":         c.AccessTTL,
		"JWT_REFRESH_TTL":        c.RefreshTTL,
		"VERIFICATION_TOKEN_TTL": c.VerificationTTL,
		"RESET_TOKEN_TTL":        c.ResetTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxRefreshPerUser < 1 {
		errs = append(errs, errors.New("MAX_REFRESH_TOKENS_PER_USER must be at least 1"))
	}
	if c.EmailSendRate <= 0 {
		errs = append(errs, errors.New("EMAIL_SEND_RATE must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Policies returns the rate-limit policies with any configured overrides applied.
func (c *Config) Policies() ratelimit.Policies {
	p := ratelimit.DefaultPolicies(c.IsProduction())
	rl := c.RateLimit
	override(&p.General, rl.GeneralWindow, rl.GeneralMax)
	override(&p.Strict, rl.StrictWindow, rl.StrictMax)
	override(&p.Auth, rl.AuthWindow, rl.AuthMax)
	override(&p.PasswordReset, rl.PasswordResetWindow, rl.PasswordResetMax)
	override(&p.EmailVerification, rl.EmailVerificationWindow, rl.EmailVerificationMax)
	return p
}

func override(p *ratelimit.Policy, window time.Duration, max int) {
	if window > 0 {
		p.Window = window
	}
	if max > 0 {
		p.Max = max
	}
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func allowedOrigins(raw, frontendURL string) []string {
	origins := parseOrigins(raw)
	if len(origins) == 0 {
		origins = parseOrigins(frontendURL)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" && !containsOrigin(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

// hostname strips scheme, path and port from a HOST value.
func hostname(host string) string {
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}
