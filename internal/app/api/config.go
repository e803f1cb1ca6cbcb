package api

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
	"gopkg.in/yaml.v3"

	processorclient "github.com/Apurer/payment-reconciler/internal/clients/http/processor"
)

// ProcessorConfig carries the payment processor credentials and checkout defaults.
type ProcessorConfig struct {
	BaseURL        string `yaml:"base_url"`
	SecretKey      string `yaml:"secret_key"`
	Currency       string `yaml:"currency"`
	DefaultCity    string `yaml:"default_city"`
	DefaultState   string `yaml:"default_state"`
	DefaultCountry string `yaml:"default_country"`
}

// Config carries file and environment driven settings for the payment processes.
type Config struct {
	ServiceVersion        string          `yaml:"service_version"`
	Environment           string          `yaml:"environment"`
	Port                  string          `yaml:"port"`
	PostgresDSN           string          `yaml:"postgres_dsn"`
	TemporalAddress       string          `yaml:"temporal_address"`
	TemporalNamespace     string          `yaml:"temporal_namespace"`
	TemporalDisabled      bool            `yaml:"temporal_disabled"`
	PublicBaseURL         string          `yaml:"public_base_url"`
	FrontendURL           string          `yaml:"frontend_url"`
	Processor             ProcessorConfig `yaml:"processor"`
	WebhookSecret         string          `yaml:"webhook_secret"`
	CallbackSigningSecret string          `yaml:"callback_signing_secret"`
	CapsuleSecret         string          `yaml:"capsule_secret"`
	CapsuleTTLMinutes     int             `yaml:"capsule_ttl_minutes"`
	JWTSecret             string          `yaml:"jwt_secret"`
	AllowedOrigins        []string        `yaml:"allowed_origins"`
	RateLimitRPS          float64         `yaml:"rate_limit_rps"`
	RateLimitBurst        int             `yaml:"rate_limit_burst"`
	ReceiptRetentionHours int             `yaml:"receipt_retention_hours"`
	SweepIntervalMinutes  int             `yaml:"sweep_interval_minutes"`
}

// CapsuleTTL is the session capsule lifetime.
func (c Config) CapsuleTTL() time.Duration {
	return time.Duration(c.CapsuleTTLMinutes) * time.Minute
}

// SweepInterval is how often the worker re-verifies orders that never saw a webhook.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// ReceiptRetention is how long webhook receipts are kept for de-duplication.
func (c Config) ReceiptRetention() time.Duration {
	return time.Duration(c.ReceiptRetentionHours) * time.Hour
}

func defaultConfig() Config {
	return Config{
		ServiceVersion:    "dev",
		Environment:       "local",
		Port:              "8080",
		TemporalAddress:   client.DefaultHostPort,
		TemporalNamespace: client.DefaultNamespace,
		FrontendURL:       "http://localhost:3000",
		Processor: ProcessorConfig{
			BaseURL:        processorclient.DefaultBaseURL,
			Currency:       "ETB",
			DefaultCity:    "Addis Ababa",
			DefaultState:   "Addis Ababa",
			DefaultCountry: "Ethiopia",
		},
		CapsuleTTLMinutes:     30,
		RateLimitRPS:          5,
		RateLimitBurst:        10,
		ReceiptRetentionHours: 720,
		SweepIntervalMinutes:  15,
	}
}

// LoadConfig reads the optional YAML file named by CONFIG_PATH, applies environment overrides,
// and validates basic constraints.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.ServiceVersion, "SERVICE_VERSION")
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.Port, "PORT")
	setString(&cfg.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.TemporalAddress, "TEMPORAL_ADDRESS")
	setString(&cfg.TemporalNamespace, "TEMPORAL_NAMESPACE")
	if v, ok := lookup("TEMPORAL_DISABLED"); ok {
		cfg.TemporalDisabled = isTruthy(v)
	}
	setString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&cfg.FrontendURL, "FRONTEND_URL")
	setString(&cfg.Processor.BaseURL, "PROCESSOR_BASE_URL")
	setString(&cfg.Processor.SecretKey, "PROCESSOR_SECRET_KEY")
	setString(&cfg.Processor.Currency, "PROCESSOR_CURRENCY")
	setString(&cfg.Processor.DefaultCity, "DEFAULT_CITY")
	setString(&cfg.Processor.DefaultState, "DEFAULT_STATE")
	setString(&cfg.Processor.DefaultCountry, "DEFAULT_COUNTRY")
	setString(&cfg.WebhookSecret, "WEBHOOK_SECRET")
	setString(&cfg.CallbackSigningSecret, "CALLBACK_SIGNING_SECRET")
	setString(&cfg.CapsuleSecret, "CAPSULE_SECRET")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitCommaList(v)
	}

	var errs []error
	errs = append(errs, setInt(&cfg.CapsuleTTLMinutes, "CAPSULE_TTL_MINUTES"))
	errs = append(errs, setInt(&cfg.RateLimitBurst, "RATE_LIMIT_BURST"))
	errs = append(errs, setInt(&cfg.ReceiptRetentionHours, "RECEIPT_RETENTION_HOURS"))
	errs = append(errs, setInt(&cfg.SweepIntervalMinutes, "SWEEP_INTERVAL_MINUTES"))
	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be a number"))
		} else {
			cfg.RateLimitRPS = rps
		}
	}
	return errors.Join(errs...)
}

func (c Config) validate() error {
	var errs []error
	if c.CapsuleTTLMinutes <= 0 || c.CapsuleTTLMinutes > 30 {
		errs = append(errs, fmt.Errorf("capsule TTL must be between 1 and 30 minutes"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative"))
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate limit burst must be a positive integer"))
	}
	if c.ReceiptRetentionHours <= 0 {
		errs = append(errs, fmt.Errorf("receipt retention must be a positive integer"))
	}
	if c.SweepIntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be a positive integer"))
	}
	for name, raw := range map[string]string{
		"PUBLIC_BASE_URL":    c.PublicBaseURL,
		"FRONTEND_URL":       c.FrontendURL,
		"PROCESSOR_BASE_URL": c.Processor.BaseURL,
	} {
		if raw == "" {
			continue
		}
		if parsed, err := url.Parse(raw); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL", name))
		}
	}
	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func setString(target *string, key string) {
	if v, ok := lookup(key); ok {
		*target = v
	}
}

func setInt(target *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s must be a positive integer", key)
	}
	*target = n
	return nil
}

func splitCommaList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isTruthy(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes"
}
