package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/flowpbx/callrouter/internal/phone"
)

// Config holds all runtime configuration for the call router.
// Precedence: CLI flags > env vars > .env file > defaults.
type Config struct {
	HTTPPort          int
	HubSpotAPIKey     string
	HubSpotBaseURL    string
	WebhookSecret     string // empty disables signature verification
	WebhookPath       string
	OwnerMap          string // path to a YAML owner table
	OwnerMapDSN       string // sqlite path or postgres:// DSN holding the owner table
	FallbackPrimary   string
	FallbackSecondary string
	CRMTimeout        time.Duration
	CRMRate           float64 // outbound CRM requests per second, 0 for unlimited
	CRMBurst          int
	LogLevel          string
	LogFormat         string // "text" or "json"
}

// defaults
const (
	defaultHTTPPort          = 3000
	defaultHubSpotBaseURL    = "https://api.hubapi.com"
	defaultWebhookPath       = "/aircall-routing"
	defaultFallbackPrimary   = "+34664413035"
	defaultFallbackSecondary = "+34674149055"
	defaultCRMTimeout        = 5 * time.Second
	defaultCRMRate           = 10
	defaultCRMBurst          = 10
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
)

// envPrefix is the prefix for all call router environment variables.
const envPrefix = "CALLROUTER_"

// envAliases are unprefixed variable names accepted when the prefixed
// variable is unset, so existing deployments keep working.
var envAliases = map[string]string{
	"http-port":       "PORT",
	"hubspot-api-key": "HUBSPOT_API_KEY",
	"webhook-secret":  "AIRCALL_WEBHOOK_SECRET",
}

// dotEnvFile is read before the environment is consulted. A missing file is
// not an error.
var dotEnvFile = ".env"

// Load parses configuration from CLI flags and environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callrouter", flag.ContinueOnError)

	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.HubSpotAPIKey, "hubspot-api-key", "", "HubSpot private app token used for contact search")
	fs.StringVar(&cfg.HubSpotBaseURL, "hubspot-base-url", defaultHubSpotBaseURL, "HubSpot API base URL")
	fs.StringVar(&cfg.WebhookSecret, "webhook-secret", "", "shared secret for Aircall webhook signatures (verification disabled if empty)")
	fs.StringVar(&cfg.WebhookPath, "webhook-path", defaultWebhookPath, "path of the call routing webhook")
	fs.StringVar(&cfg.OwnerMap, "owner-map", "", "YAML file mapping HubSpot owners to Aircall agents")
	fs.StringVar(&cfg.OwnerMapDSN, "owner-map-dsn", "", "sqlite path or postgres DSN holding the owner_agents table")
	fs.StringVar(&cfg.FallbackPrimary, "fallback-primary", defaultFallbackPrimary, "first fallback number in E.164 form")
	fs.StringVar(&cfg.FallbackSecondary, "fallback-secondary", defaultFallbackSecondary, "second fallback number in E.164 form")
	fs.DurationVar(&cfg.CRMTimeout, "crm-timeout", defaultCRMTimeout, "deadline for one HubSpot owner lookup")
	fs.Float64Var(&cfg.CRMRate, "crm-rate", defaultCRMRate, "maximum HubSpot requests per second (0 for unlimited)")
	fs.IntVar(&cfg.CRMBurst, "crm-burst", defaultCRMBurst, "HubSpot request burst size")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(fs, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv copies variables from path into the process environment.
// Variables already present in the environment win.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// envName returns the prefixed environment variable for a flag name.
func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// lookupEnv returns the value for flagName from its prefixed variable or,
// failing that, its alias.
func lookupEnv(flagName string) (string, bool) {
	if val, ok := os.LookupEnv(envName(flagName)); ok && val != "" {
		return val, true
	}
	if alias, ok := envAliases[flagName]; ok {
		if val, ok := os.LookupEnv(alias); ok && val != "" {
			return val, true
		}
	}
	return "", false
}

// applyEnvOverrides sets every flag that was not given on the command line
// from the environment.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] {
			return
		}
		val, ok := lookupEnv(f.Name)
		if !ok {
			return
		}
		// flag.Value parsing gives env values the same syntax as the CLI.
		if err := f.Value.Set(val); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", envName(f.Name), err))
		}
	})
	return errors.Join(errs...)
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("webhook-path must start with /, got %q", c.WebhookPath)
	}
	u, err := url.Parse(c.HubSpotBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("hubspot-base-url must be an absolute http(s) URL, got %q", c.HubSpotBaseURL)
	}
	c.HubSpotBaseURL = strings.TrimRight(c.HubSpotBaseURL, "/")

	if !phone.IsE164(c.FallbackPrimary) {
		return fmt.Errorf("fallback-primary must be an E.164 number, got %q", c.FallbackPrimary)
	}
	if !phone.IsE164(c.FallbackSecondary) {
		return fmt.Errorf("fallback-secondary must be an E.164 number, got %q", c.FallbackSecondary)
	}

	if c.OwnerMap != "" && c.OwnerMapDSN != "" {
		return fmt.Errorf("owner-map and owner-map-dsn are mutually exclusive")
	}

	if c.CRMTimeout <= 0 {
		return fmt.Errorf("crm-timeout must be positive, got %s", c.CRMTimeout)
	}
	if c.CRMRate < 0 {
		return fmt.Errorf("crm-rate must not be negative, got %s", strconv.FormatFloat(c.CRMRate, 'g', -1, 64))
	}
	if c.CRMRate > 0 && c.CRMBurst < 1 {
		return fmt.Errorf("crm-burst must be at least 1 when crm-rate is set, got %d", c.CRMBurst)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SignatureVerification reports whether webhook signatures are checked.
func (c *Config) SignatureVerification() bool {
	return c.WebhookSecret != ""
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
