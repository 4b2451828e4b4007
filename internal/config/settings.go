package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Settings are operator-tunable portal preferences. They are loaded once at
// startup and injected; nothing reads them from a global.
type Settings struct {
	Intake        IntakeSettings       `koanf:"intake" yaml:"intake"`
	Notifications NotificationSettings `koanf:"notifications" yaml:"notifications"`
	RateLimit     RateLimitSettings    `koanf:"rate_limit" yaml:"rate_limit"`
}

type IntakeSettings struct {
	MaxFilesPerReport int   `koanf:"max_files_per_report" yaml:"max_files_per_report"`
	MaxFileBytes      int64 `koanf:"max_file_bytes" yaml:"max_file_bytes"`
	UploadConcurrency int   `koanf:"upload_concurrency" yaml:"upload_concurrency"`
}

type NotificationSettings struct {
	EmailOnAssignment bool `koanf:"email_on_assignment" yaml:"email_on_assignment"`
	EmailOnRevision   bool `koanf:"email_on_revision" yaml:"email_on_revision"`
}

// RateLimitSettings bound public report submissions per client IP.
type RateLimitSettings struct {
	SubmissionsPerMinute int `koanf:"submissions_per_minute" yaml:"submissions_per_minute"`
	Burst                int `koanf:"burst" yaml:"burst"`
}

const settingsEnvPrefix = "PORTAL_SETTINGS_"

func DefaultSettings() Settings {
	return Settings{
		Intake: IntakeSettings{
			MaxFilesPerReport: 10,
			MaxFileBytes:      50 << 20,
			UploadConcurrency: 4,
		},
		Notifications: NotificationSettings{
			EmailOnAssignment: true,
			EmailOnRevision:   true,
		},
		RateLimit: RateLimitSettings{
			SubmissionsPerMinute: 10,
			Burst:                5,
		},
	}
}

// LoadSettings reads path (if it exists) over the defaults, then overlays
// PORTAL_SETTINGS_* env vars. Nested keys use "__":
// PORTAL_SETTINGS_INTAKE__MAX_FILES_PER_REPORT=5.
func LoadSettings(path string) (Settings, error) {
	k := koanf.New(".")
	s := DefaultSettings()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Settings{}, fmt.Errorf("reading settings %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Settings{}, fmt.Errorf("accessing settings %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(settingsEnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, settingsEnvPrefix)), "__", ".")
	}), nil); err != nil {
		return Settings{}, fmt.Errorf("loading settings env overrides: %w", err)
	}

	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshalling settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes the settings to path atomically.
func (s Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yamlv3.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("writing settings to %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing settings to %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing settings to %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing settings to %s: %w", path, err)
	}
	return nil
}

func (s Settings) Validate() error {
	var errs []error
	if s.Intake.MaxFilesPerReport <= 0 {
		errs = append(errs, errors.New("intake.max_files_per_report must be positive"))
	}
	if s.Intake.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("intake.max_file_bytes must be positive"))
	}
	if s.Intake.UploadConcurrency <= 0 {
		errs = append(errs, errors.New("intake.upload_concurrency must be positive"))
	}
	if s.RateLimit.SubmissionsPerMinute <= 0 {
		errs = append(errs, errors.New("rate_limit.submissions_per_minute must be positive"))
	}
	if s.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.burst must be positive"))
	}
	return joinErrors(errs)
}
