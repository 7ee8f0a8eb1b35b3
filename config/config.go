// Package config loads the immutable runtime configuration from the
// environment (optionally seeded from a .env file) and the optional page
// selector profile. Everything is read once at startup; missing required
// values are a fatal startup error, never a runtime retry condition.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissing is returned when a required setting is absent from the
// environment.
var ErrMissing = errors.New("config: missing required setting")

// ErrInvalid is returned when a setting is present but unparsable.
var ErrInvalid = errors.New("config: invalid setting")

// Config is the complete runtime configuration. Immutable after Load.
type Config struct {
	// Credentials and portal entry point.
	Username string
	Password string
	LoginURL string

	// PortalHost is the host of LoginURL, used as the post-login indicator
	// ("we made it back from the SSO redirect chain").
	PortalHost string

	// CheckInterval is the pause between poll iterations.
	CheckInterval time.Duration
	// WaitTimeout bounds every single element wait.
	WaitTimeout time.Duration
	// LoginMaxWait bounds the whole login/MFA redirect chain.
	LoginMaxWait time.Duration

	// SoundFrequency in Hz and SoundDuration for the change alert tone.
	SoundFrequency int
	SoundDuration  time.Duration

	// BrowserURL is the websocket URL of an already-running Chrome.
	// Empty means launch a local one.
	BrowserURL string
	// Headless controls the launched Chrome. Defaults to false so an
	// interactive MFA prompt stays visible.
	Headless bool

	LogLevel string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first if present; its absence is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		Username: required("USERNAME_LSF"),
		Password: required("PASSWORD_LSF"),
		LoginURL: required("LSF_LOGIN_PAGE"),

		BrowserURL: os.Getenv("LSF_BROWSER_URL"),
		LogLevel:   env("LOG_LEVEL", "info"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	u, err := url.Parse(cfg.LoginURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: LSF_LOGIN_PAGE %q is not a valid URL", ErrInvalid, cfg.LoginURL)
	}
	cfg.PortalHost = strings.ToLower(u.Host)

	if cfg.CheckInterval, err = seconds("CHECK_INTERVAL", 30); err != nil {
		return nil, err
	}
	if cfg.WaitTimeout, err = seconds("WAIT_TIMEOUT", 10); err != nil {
		return nil, err
	}
	if cfg.LoginMaxWait, err = seconds("LOGIN_MAX_WAIT", 300); err != nil {
		return nil, err
	}
	if cfg.SoundFrequency, err = integer("SOUND_FREQUENCY", 2500); err != nil {
		return nil, err
	}
	ms, err := integer("SOUND_DURATION", 10000)
	if err != nil {
		return nil, err
	}
	cfg.SoundDuration = time.Duration(ms) * time.Millisecond

	cfg.Headless, err = boolean("LSF_HEADLESS", false)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seconds reads a positive integer number of seconds.
func seconds(key string, fallback int) (time.Duration, error) {
	n, err := integer(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// integer reads a positive integer.
func integer(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s=%d must be positive", ErrInvalid, key, n)
	}
	return n, nil
}

func boolean(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, raw)
	}
	return b, nil
}
