package config

// ConfigDiff describes what changed between two configs. Only the log level
// and the command prefix can be applied at runtime; every other change is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PrefixChanged bool
	NewPrefix     string

	// RestartRequired names the changed settings that take effect only
	// after a restart, e.g. "storage.driver".
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PrefixChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Discord.Prefix != new.Discord.Prefix {
		d.PrefixChanged = true
		d.NewPrefix = new.Discord.Prefix
	}

	restart := []struct {
		name    string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"discord.token", old.Discord.Token != new.Discord.Token},
		{"discord.guild_id", old.Discord.GuildID != new.Discord.GuildID},
		{"discord.dj_role_id", old.Discord.DJRoleID != new.Discord.DJRoleID},
		{"storage", old.Storage != new.Storage},
		{"ytdlp", old.YTDLP != new.YTDLP},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.name)
		}
	}
	return d
}
