// Package config handles the global ~/.pigeon/config.toml and the
// per-profile profile.toml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Sync holds engine tuning knobs. Zero values fall back to defaults.
type Sync struct {
	// PollIntervalSecs is the cadence of authoritative drift reconciliation.
	PollIntervalSecs int `toml:"poll_interval_secs"`
	// TypingQuietMillis is the keystroke silence before a typing-stop signal.
	TypingQuietMillis int `toml:"typing_quiet_millis"`
	// ReadNotifyRetries caps retry attempts for read-receipt notifications.
	ReadNotifyRetries int `toml:"read_notify_retries"`
}

// Config represents the global ~/.pigeon/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Sync           Sync   `toml:"sync"`
}

// Profile represents a per-profile profile.toml: who the local user is and
// where the server lives.
type Profile struct {
	UserID      string `toml:"user_id"`
	DisplayName string `toml:"display_name"`
	ServerURL   string `toml:"server_url"`
}

// PollInterval returns the configured poll interval, defaulting to 90s.
func (s Sync) PollInterval() time.Duration {
	if s.PollIntervalSecs <= 0 {
		return 90 * time.Second
	}
	return time.Duration(s.PollIntervalSecs) * time.Second
}

// TypingQuiet returns the typing debounce window, defaulting to 3s.
func (s Sync) TypingQuiet() time.Duration {
	if s.TypingQuietMillis <= 0 {
		return 3 * time.Second
	}
	return time.Duration(s.TypingQuietMillis) * time.Millisecond
}

// Load reads the global config from the given path. Returns an error if the
// file is missing; callers treat that as "use defaults".
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config to the given path, creating parent dirs as
// needed.
func Save(path string, cfg *Config) error {
	return write(path, cfg)
}

// LoadProfile reads a profile.toml.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	_, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile writes a profile.toml.
func SaveProfile(path string, p *Profile) error {
	return write(path, p)
}

func write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
