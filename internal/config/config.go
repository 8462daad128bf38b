package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	herrors "github.com/alexjbarnes/healthsync/internal/errors"
)

// Config holds all environment-based configuration for healthsync.
type Config struct {
	// Withings application credentials, issued in the provider's
	// developer console. Both are required.
	ClientID     string `env:"WITHINGS_CLIENT_ID"`
	ClientSecret string `env:"WITHINGS_CLIENT_SECRET"`

	// RedirectURI is the absolute HTTPS URL the provider redirects to
	// after the user approves access. It must match the value
	// registered with the provider byte-for-byte.
	RedirectURI string `env:"WITHINGS_REDIRECT_URI"`

	// Provider endpoints. Overridable for tests and regional setups.
	APIBaseURL   string `env:"WITHINGS_API_URL" envDefault:"https://wbsapi.withings.net"`
	AuthorizeURL string `env:"WITHINGS_AUTHORIZE_URL" envDefault:"https://account.withings.com/oauth2_user/authorize2"`

	// NotifyCallbackURL receives webhook notifications after a
	// successful connection. Optional; when empty no subscriptions
	// are registered.
	NotifyCallbackURL string `env:"HEALTHSYNC_NOTIFY_URL"`

	// Metrics is the comma-separated list of canonical metric keys to
	// request during authorization and fetch by default.
	Metrics string `env:"HEALTHSYNC_METRICS" envDefault:"weight,heart_rate,steps,sleep_duration"`

	// StateDB overrides the token database location. Defaults to
	// ~/.healthsync/state.db.
	StateDB string `env:"HEALTHSYNC_STATE_DB"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// placeholderValues are template credentials copied from setup docs.
// Treated the same as missing so a half-configured install fails loudly.
var placeholderValues = map[string]struct{}{
	"your_client_id":     {},
	"your_client_secret": {},
	"changeme":           {},
	"xxx":                {},
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the client secret to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Parse reads configuration from environment variables without
// validating credentials. It first attempts to load a .env file if
// present, then parses env vars. Commands that never talk to the
// provider use it so an unconfigured install can still run them.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Load reads and validates configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that credentials are present and the redirect URI is
// a well-formed absolute HTTPS URL. Returns *errors.ConfigError so the
// caller can surface actionable guidance.
func (c *Config) Validate() error {
	if err := requireCredential("WITHINGS_CLIENT_ID", c.ClientID); err != nil {
		return err
	}

	if err := requireCredential("WITHINGS_CLIENT_SECRET", c.ClientSecret); err != nil {
		return err
	}

	if c.RedirectURI == "" {
		return &herrors.ConfigError{
			Field:    "WITHINGS_REDIRECT_URI",
			Reason:   "not set",
			Guidance: "set the HTTPS callback URL registered with the provider",
		}
	}

	u, err := url.Parse(c.RedirectURI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &herrors.ConfigError{
			Field:  "WITHINGS_REDIRECT_URI",
			Reason: "must be an absolute URL",
		}
	}

	if u.Scheme != "https" {
		return &herrors.ConfigError{
			Field:    "WITHINGS_REDIRECT_URI",
			Reason:   fmt.Sprintf("scheme %q not allowed", u.Scheme),
			Guidance: "the provider only delivers authorization codes over https",
		}
	}

	if c.APIBaseURL == "" || c.AuthorizeURL == "" {
		return &herrors.ConfigError{
			Field:  "WITHINGS_API_URL",
			Reason: "provider endpoints must not be empty",
		}
	}

	return nil
}

func requireCredential(field, value string) error {
	if value == "" {
		return &herrors.ConfigError{
			Field:    field,
			Reason:   "not set",
			Guidance: "create an application in the provider's developer console",
		}
	}

	if _, placeholder := placeholderValues[strings.ToLower(value)]; placeholder {
		return &herrors.ConfigError{
			Field:    field,
			Reason:   "placeholder value",
			Guidance: "replace the template value with the real credential",
		}
	}

	return nil
}

// ParseMetrics splits the configured metric list into deduplicated
// canonical keys, preserving order.
func (c *Config) ParseMetrics() []string {
	seen := make(map[string]struct{})

	var keys []string

	for _, k := range strings.Split(c.Metrics, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}

		if _, dup := seen[k]; dup {
			continue
		}

		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	return keys
}
