package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Sounds.Directory == "" {
		errs = append(errs, errors.New("sounds.directory is required"))
	}

	if cfg.Playback.JoinTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.join_timeout %s must not be negative", cfg.Playback.JoinTimeout))
	}
	if cfg.Playback.PlayTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.play_timeout %s must not be negative", cfg.Playback.PlayTimeout))
	}
	if cfg.Remote.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("remote.fetch_timeout %s must not be negative", cfg.Remote.FetchTimeout))
	}
	if cfg.Remote.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("remote.breaker.max_failures %d must not be negative", cfg.Remote.Breaker.MaxFailures))
	}
	if cfg.Remote.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("remote.breaker.reset_timeout %s must not be negative", cfg.Remote.Breaker.ResetTimeout))
	}

	if cfg.Intros.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("intros.cooldown %s must not be negative", cfg.Intros.Cooldown))
	}
	for i, ch := range cfg.Intros.Channels {
		if ch == "" {
			errs = append(errs, fmt.Errorf("intros.channels[%d] is empty", i))
		}
	}

	seen := make(map[string]int, len(cfg.Intros.UserIntros))
	for i, ui := range cfg.Intros.UserIntros {
		prefix := fmt.Sprintf("intros.user_intros[%d]", i)
		if ui.User == "" {
			errs = append(errs, fmt.Errorf("%s.user is required", prefix))
		}
		if ui.SoundFile == "" {
			errs = append(errs, fmt.Errorf("%s.sound_file is required", prefix))
		}
		if ui.User == "" {
			continue
		}
		if first, ok := seen[ui.User]; ok {
			slog.Warn("config: duplicate intro for user; the first entry wins",
				"user", ui.User,
				"first", first,
				"ignored", i,
			)
			continue
		}
		seen[ui.User] = i
	}
	if len(cfg.Intros.UserIntros) > 0 && len(cfg.Intros.Channels) == 0 {
		slog.Warn("config: intros.user_intros is set but intros.channels is empty; no intro will ever play")
	}

	return errors.Join(errs...)
}
