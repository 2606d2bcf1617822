package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App            AppConfig            `yaml:"app"`
	Log            LogConfig            `yaml:"log"`
	Postgres       PostgresConfig       `yaml:"postgres"`
	HostedGateway  HostedGatewayConfig  `yaml:"hosted_gateway"`
	FormGateway    FormGatewayConfig    `yaml:"form_gateway"`
	Notification   NotificationConfig   `yaml:"notification"`
	Auth           AuthConfig           `yaml:"auth"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Checkout       CheckoutConfig       `yaml:"checkout"`
}

type AppConfig struct {
	Name          string `yaml:"name"`
	Env           string `yaml:"env"`
	Port          string `yaml:"port"`
	PublicBaseURL string `yaml:"public_base_url"`
	// Store selects the order/catalog backend: "postgres" or "memory".
	Store string `yaml:"store"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type HostedGatewayConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	SecretKey    string        `yaml:"secret_key"`
	Currency     string        `yaml:"currency"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryCount   int           `yaml:"retry_count"`
	RetryWait    time.Duration `yaml:"retry_wait"`
	RetryMaxWait time.Duration `yaml:"retry_max_wait"`
}

type FormGatewayConfig struct {
	Enabled            bool   `yaml:"enabled"`
	MerchantID         string `yaml:"merchant_id"`
	MerchantKey        string `yaml:"merchant_key"`
	Passphrase         string `yaml:"passphrase"`
	ProcessURL         string `yaml:"process_url"`
	SignatureAlgorithm string `yaml:"signature_algorithm"`
}

type NotificationConfig struct {
	ProviderURL string        `yaml:"provider_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	// VATRate is the inclusive rate used to show the tax portion in emails.
	VATRate decimal.Decimal `yaml:"vat_rate"`
}

type AuthConfig struct {
	ServiceRoleSecret string `yaml:"service_role_secret"`
}

type ReconciliationConfig struct {
	PaymentTimeout time.Duration `yaml:"payment_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`
}

type CheckoutConfig struct {
	MaxConcurrentStores int `yaml:"max_concurrent_stores"`
}

var ErrMissingSetting = errors.New("config: required setting is missing")

func Default() Config {
	return Config{
		App: AppConfig{
			Name:          "checkout-service",
			Env:           "dev",
			Port:          "8080",
			PublicBaseURL: "http://localhost:8080",
			Store:         "postgres",
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Postgres: PostgresConfig{
			Port:            "5432",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		HostedGateway: HostedGatewayConfig{
			Enabled:      true,
			BaseURL:      "https://payments.yoco.com",
			Currency:     "ZAR",
			Timeout:      10 * time.Second,
			RetryCount:   2,
			RetryWait:    200 * time.Millisecond,
			RetryMaxWait: 2 * time.Second,
		},
		FormGateway: FormGatewayConfig{
			Enabled:            true,
			ProcessURL:         "https://www.payfast.co.za/eng/process",
			SignatureAlgorithm: "md5",
		},
		Notification: NotificationConfig{
			Timeout: 10 * time.Second,
			VATRate: decimal.RequireFromString("0.15"),
		},
		Reconciliation: ReconciliationConfig{
			PaymentTimeout: 30 * time.Minute,
			SweepInterval:  time.Minute,
			SweepBatchSize: 100,
		},
		Checkout: CheckoutConfig{MaxConcurrentStores: 8},
	}
}

// Load builds the configuration once at startup: defaults, then the optional
// YAML file, then .env, then the process environment.
func Load(yamlPath string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: invalid config file %s: %w", yamlPath, err)
		}
	}

	for _, p := range envFiles {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load %s: %w", p, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(c *Config) error {
	str(&c.App.Env, "APP_ENV")
	str(&c.App.Port, "APP_PORT")
	str(&c.App.PublicBaseURL, "APP_PUBLIC_BASE_URL")
	str(&c.App.Store, "APP_STORE")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")

	str(&c.Postgres.Host, "DB_HOST")
	str(&c.Postgres.Port, "DB_PORT")
	str(&c.Postgres.User, "DB_USER")
	str(&c.Postgres.Password, "DB_PASSWORD")
	str(&c.Postgres.DBName, "DB_NAME")
	str(&c.Postgres.SSLMode, "DB_SSLMODE")

	str(&c.HostedGateway.BaseURL, "HOSTED_GATEWAY_BASE_URL")
	str(&c.HostedGateway.SecretKey, "HOSTED_GATEWAY_SECRET_KEY")
	str(&c.HostedGateway.Currency, "HOSTED_GATEWAY_CURRENCY")

	str(&c.FormGateway.MerchantID, "FORM_GATEWAY_MERCHANT_ID")
	str(&c.FormGateway.MerchantKey, "FORM_GATEWAY_MERCHANT_KEY")
	str(&c.FormGateway.Passphrase, "FORM_GATEWAY_PASSPHRASE")
	str(&c.FormGateway.ProcessURL, "FORM_GATEWAY_PROCESS_URL")
	str(&c.FormGateway.SignatureAlgorithm, "FORM_GATEWAY_SIGNATURE_ALGORITHM")

	str(&c.Notification.ProviderURL, "NOTIFICATION_PROVIDER_URL")
	str(&c.Notification.APIKey, "NOTIFICATION_API_KEY")
	str(&c.Auth.ServiceRoleSecret, "SERVICE_ROLE_JWT_SECRET")

	if v := os.Getenv("NOTIFICATION_VAT_RATE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("config: NOTIFICATION_VAT_RATE: %w", err)
		}
		c.Notification.VATRate = d
	}

	for _, b := range []struct {
		dst *bool
		key string
	}{
		{&c.Postgres.AutoMigrate, "DB_AUTO_MIGRATE"},
		{&c.HostedGateway.Enabled, "HOSTED_GATEWAY_ENABLED"},
		{&c.FormGateway.Enabled, "FORM_GATEWAY_ENABLED"},
	} {
		if v := os.Getenv(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	for _, d := range []struct {
		dst *time.Duration
		key string
	}{
		{&c.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"},
		{&c.HostedGateway.Timeout, "HOSTED_GATEWAY_TIMEOUT"},
		{&c.Notification.Timeout, "NOTIFICATION_TIMEOUT"},
		{&c.Reconciliation.PaymentTimeout, "PAYMENT_TIMEOUT"},
		{&c.Reconciliation.SweepInterval, "SWEEP_INTERVAL"},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	for _, n := range []struct {
		dst *int
		key string
	}{
		{&c.HostedGateway.RetryCount, "HOSTED_GATEWAY_RETRY_COUNT"},
		{&c.Reconciliation.SweepBatchSize, "SWEEP_BATCH_SIZE"},
		{&c.Checkout.MaxConcurrentStores, "CHECKOUT_MAX_CONCURRENT_STORES"},
	} {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}
	return nil
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate refuses to start with an enabled gateway that has no credentials.
func (c *Config) Validate() error {
	if c.App.Store == "postgres" {
		for key, v := range map[string]string{
			"DB_HOST":     c.Postgres.Host,
			"DB_USER":     c.Postgres.User,
			"DB_PASSWORD": c.Postgres.Password,
			"DB_NAME":     c.Postgres.DBName,
		} {
			if v == "" {
				return fmt.Errorf("%w: %s", ErrMissingSetting, key)
			}
		}
	} else if c.App.Store != "memory" {
		return fmt.Errorf("config: unknown store %q", c.App.Store)
	}

	if c.HostedGateway.Enabled && c.HostedGateway.SecretKey == "" {
		return fmt.Errorf("%w: HOSTED_GATEWAY_SECRET_KEY", ErrMissingSetting)
	}
	if c.FormGateway.Enabled {
		if c.FormGateway.MerchantID == "" {
			return fmt.Errorf("%w: FORM_GATEWAY_MERCHANT_ID", ErrMissingSetting)
		}
		if c.FormGateway.MerchantKey == "" {
			return fmt.Errorf("%w: FORM_GATEWAY_MERCHANT_KEY", ErrMissingSetting)
		}
		if c.FormGateway.Passphrase == "" {
			return fmt.Errorf("%w: FORM_GATEWAY_PASSPHRASE", ErrMissingSetting)
		}
	}
	if c.Auth.ServiceRoleSecret == "" {
		return fmt.Errorf("%w: SERVICE_ROLE_JWT_SECRET", ErrMissingSetting)
	}
	if c.Reconciliation.PaymentTimeout <= 0 {
		return fmt.Errorf("config: payment timeout must be positive")
	}
	if c.Checkout.MaxConcurrentStores <= 0 {
		c.Checkout.MaxConcurrentStores = 1
	}
	return nil
}

// DSN returns the key/value connection string used by pgxpool.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// MigrateURL returns the pgx5:// URL golang-migrate expects.
func (p PostgresConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}
