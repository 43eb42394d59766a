package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// IntrosChanged is true when the intro channels, rules or cooldown
	// differ. These are applied live.
	IntrosChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the changed settings that only take effect
	// after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Intros.Channels, new.Intros.Channels) ||
		!slices.Equal(old.Intros.UserIntros, new.Intros.UserIntros) ||
		old.Intros.Cooldown != new.Intros.Cooldown {
		d.IntrosChanged = true
	}

	restart := []struct {
		key     string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"discord.token", old.Discord.Token != new.Discord.Token},
		{"discord.guild_id", old.Discord.GuildID != new.Discord.GuildID},
		{"discord.controller_role_id", old.Discord.ControllerRoleID != new.Discord.ControllerRoleID},
		{"discord.command_channel_ids", !slices.Equal(old.Discord.CommandChannelIDs, new.Discord.CommandChannelIDs)},
		{"sounds", old.Sounds != new.Sounds},
		{"playback", old.Playback != new.Playback},
		{"remote", old.Remote != new.Remote},
		{"history.postgres_dsn", old.History.PostgresDSN != new.History.PostgresDSN},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.key)
		}
	}

	return d
}
