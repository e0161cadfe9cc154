package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server     ServerConfig     `env:",prefix=SERVER_"`
	Postgres   PostgresConfig   `env:",prefix=POSTGRES_"`
	Redis      RedisConfig      `env:",prefix=REDIS_"`
	JWT        JWTConfig        `env:",prefix=JWT_"`
	Cookie     CookieConfig     `env:",prefix=COOKIE_"`
	Encryption EncryptionConfig `env:",prefix=ENCRYPTION_"`
	TwoFactor  TwoFactorConfig  `env:",prefix=TWO_FACTOR_"`
	RateLimit  RateLimitConfig  `env:",prefix=RATE_LIMIT_"`
	Tokens     TokensConfig     `env:",prefix=TOKENS_"`
	Mail       MailConfig       `env:",prefix=MAIL_"`
	Log        LogConfig        `env:",prefix=LOG_"`
	Security   SecurityConfig   `env:",prefix="`
	CORS       CORSConfig       `env:",prefix=CORS_"`
	Env        string           `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
	// TrustedProxies lists proxy CIDRs whose forwarding headers decide the client IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES,default=127.0.0.1"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=storefront"`
	Password string `env:"PASSWORD,default=storefront_password"`
	DBName   string `env:"DB,default=storefront_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool `env:"MIGRATE_ON_START,default=true"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret string   `env:"SECRET,required"`
	Expiry Duration `env:"EXPIRY,default=7d"`
	Issuer string   `env:"ISSUER,default=storefront-auth"`
}

type CookieConfig struct {
	Name        string   `env:"NAME,default=auth_token"`
	Domain      string   `env:"DOMAIN,default="`
	Path        string   `env:"PATH,default=/"`
	Secure      bool     `env:"SECURE,default=true"`
	SameSite    string   `env:"SAMESITE,default=strict"`
	LegacyNames []string `env:"LEGACY_NAMES,default=token,admin_token"`
}

type EncryptionConfig struct {
	Key  string `env:"KEY,required"`
	Salt string `env:"SALT,default=storefront-field-encryption"`
}

type TwoFactorConfig struct {
	CodeTTL           Duration `env:"CODE_TTL,default=10m"`
	RequiredForAdmins bool     `env:"REQUIRED_FOR_ADMINS,default=true"`
	Store             string   `env:"STORE,default=postgres"`
}

type RateLimitConfig struct {
	Backend       string   `env:"BACKEND,default=memory"`
	SweepInterval Duration `env:"SWEEP_INTERVAL,default=1m"`
}

type TokensConfig struct {
	PasswordResetTTL     Duration `env:"PASSWORD_RESET_TTL,default=1h"`
	EmailVerificationTTL Duration `env:"EMAIL_VERIFICATION_TTL,default=24h"`
	AppBaseURL           string   `env:"APP_BASE_URL,default=http://localhost:3000"`
}

type MailConfig struct {
	Transport string `env:"TRANSPORT,default=log"`
	OutboxKey string `env:"OUTBOX_KEY,default=mail:outbox"`
	From      string `env:"FROM,default=no-reply@storefront.local"`
}

type LogConfig struct {
	Level  string   `env:"LEVEL,default=info"`
	File   string   `env:"FILE,default="`
	MaxAge Duration `env:"MAX_AGE,default=7d"`
}

type SecurityConfig struct {
	BCryptCost int `env:"BCRYPT_COST,default=12"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the PostgreSQL connection string in URL form, as the migration driver expects it
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values envconfig cannot express as tags
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if len(c.Encryption.Key) < 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 32 characters long")
	}

	if c.JWT.Expiry.Duration <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}

	if c.TwoFactor.CodeTTL.Duration <= 0 {
		return fmt.Errorf("TWO_FACTOR_CODE_TTL must be positive")
	}

	if err := oneOf("RATE_LIMIT_BACKEND", c.RateLimit.Backend, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("TWO_FACTOR_STORE", c.TwoFactor.Store, "postgres", "memory"); err != nil {
		return err
	}
	if err := oneOf("MAIL_TRANSPORT", c.Mail.Transport, "log", "redis"); err != nil {
		return err
	}
	if err := oneOf("COOKIE_SAMESITE", strings.ToLower(c.Cookie.SameSite), "strict", "lax", "none"); err != nil {
		return err
	}

	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
}
