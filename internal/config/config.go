// Package config provides the configuration schema, loader and hot-reload
// watcher for the pascal sound bot.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto a [slog.Level]. Unknown and empty levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultSoundsDirectory     = "./audio"
	DefaultJoinTimeout         = 10 * time.Second
	DefaultPlayTimeout         = 5 * time.Second
	DefaultFetchTimeout        = 30 * time.Second
	DefaultYtdlpPath           = "yt-dlp"
	DefaultFfmpegPath          = "ffmpeg"
	DefaultBreakerMaxFailures  = 5
	DefaultBreakerResetTimeout = 30 * time.Second
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Sounds   SoundsConfig   `yaml:"sounds"`
	Playback PlaybackConfig `yaml:"playback"`
	Remote   RemoteConfig   `yaml:"remote"`
	Intros   IntrosConfig   `yaml:"intros"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig holds the operational HTTP endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the address serving /healthz, /readyz and /metrics.
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the bot credentials and command gating.
type DiscordConfig struct {
	// Token is the bot token. The DISCORD_TOKEN environment variable
	// overrides it.
	Token string `yaml:"token"`

	// GuildID scopes slash command registration to a single guild. Empty
	// registers the commands globally.
	GuildID string `yaml:"guild_id"`

	// ControllerRoleID, when set, is required to use /play and /stop.
	ControllerRoleID string `yaml:"controller_role_id"`

	// CommandChannelIDs restricts commands to these text channels.
	// Empty allows every channel.
	CommandChannelIDs []string `yaml:"command_channel_ids"`
}

// SoundsConfig locates the clip library.
type SoundsConfig struct {
	Directory string `yaml:"directory"`

	// CaseInsensitiveExtensions also accepts e.g. "AIRHORN.MP3".
	CaseInsensitiveExtensions bool `yaml:"case_insensitive_extensions"`
}

// PlaybackConfig bounds voice transport calls and toggles queueing.
type PlaybackConfig struct {
	JoinTimeout time.Duration `yaml:"join_timeout"`
	PlayTimeout time.Duration `yaml:"play_timeout"`

	// QueueFiles lets /play enqueue file clips behind the current one
	// instead of answering "already playing".
	QueueFiles bool `yaml:"queue_files"`

	// StrictAutocomplete truncates suggestions to exactly ten entries.
	StrictAutocomplete bool `yaml:"strict_autocomplete"`
}

// RemoteConfig configures the external tools used for URL playback.
type RemoteConfig struct {
	YtdlpPath    string        `yaml:"ytdlp_path"`
	FfmpegPath   string        `yaml:"ffmpeg_path"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the remote fetcher.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// IntrosConfig maps users to the clip played when they join voice.
type IntrosConfig struct {
	// Channels lists the voice channels that trigger intros.
	Channels []string `yaml:"channels"`

	// Cooldown is the minimum time between two intros of the same user.
	// Zero disables the cooldown.
	Cooldown time.Duration `yaml:"cooldown"`

	UserIntros []UserIntro `yaml:"user_intros"`
}

// UserIntro is a single (user, clip) pairing. When a user appears more than
// once the first entry wins.
type UserIntro struct {
	User      string `yaml:"user"`
	SoundFile string `yaml:"sound_file"`
}

// HistoryConfig configures the play log.
type HistoryConfig struct {
	// PostgresDSN enables the PostgreSQL play log. Empty keeps history in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Sounds.Directory == "" {
		cfg.Sounds.Directory = DefaultSoundsDirectory
	}
	if cfg.Playback.JoinTimeout == 0 {
		cfg.Playback.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Playback.PlayTimeout == 0 {
		cfg.Playback.PlayTimeout = DefaultPlayTimeout
	}
	if cfg.Remote.YtdlpPath == "" {
		cfg.Remote.YtdlpPath = DefaultYtdlpPath
	}
	if cfg.Remote.FfmpegPath == "" {
		cfg.Remote.FfmpegPath = DefaultFfmpegPath
	}
	if cfg.Remote.FetchTimeout == 0 {
		cfg.Remote.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Remote.Breaker.MaxFailures == 0 {
		cfg.Remote.Breaker.MaxFailures = DefaultBreakerMaxFailures
	}
	if cfg.Remote.Breaker.ResetTimeout == 0 {
		cfg.Remote.Breaker.ResetTimeout = DefaultBreakerResetTimeout
	}
}

// ApplyEnv overrides secrets from the environment. getenv is usually
// [os.Getenv].
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if tok := getenv("DISCORD_TOKEN"); tok != "" {
		cfg.Discord.Token = tok
	}
}
