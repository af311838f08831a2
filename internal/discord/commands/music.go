// Package commands implements the dmbot chat commands. Every command has one
// transport-independent method on [MusicCommands] that returns the reply
// text; thin adapters expose it as a slash command and as a prefix command.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/dmbot/internal/discord"
	"github.com/MrWong99/dmbot/internal/observe"
	"github.com/MrWong99/dmbot/internal/player"
	"github.com/MrWong99/dmbot/internal/resolve"
	"github.com/MrWong99/dmbot/internal/songs"
	"github.com/MrWong99/dmbot/internal/ytdlp"
)

// Reply texts shown to users.
const (
	msgNotInGuild     = "This command only works in a server."
	msgNotInVoice     = "Not in a voice channel"
	msgCannotJoin     = "Not in a voice channel to play in"
	msgNoMatch        = "No videos with a name like this exist"
	msgMissingURL     = "Must provide a URL to a video or audio"
	msgRegistered     = "Video registered in database."
	msgNotDJ          = "You need the DJ role to register songs."
	msgSkipped        = "Skipping current song"
	msgSkippedLast    = "Skipping current song. The queue is now empty."
	msgNothingPlaying = "Nothing is playing."
	msgStopped        = "Current song stopped and queue cleared."
	msgNoSongs        = "No songs registered yet."
)

// maxReplyLen keeps replies under Discord's 2000 character message limit.
const maxReplyLen = 1900

// commandTimeout bounds a single command, including title lookup and the
// voice join.
const commandTimeout = 60 * time.Second

// Player is the playback service used by play, skip and stop.
type Player interface {
	Enqueue(ctx context.Context, guildID, channelID string, t player.Track) (player.Enqueued, error)
	Skip(guildID string) (remaining int, err error)
	Stop(guildID string) error
}

// VoiceLocator finds the voice channel a user is in.
type VoiceLocator interface {
	VoiceChannelOf(guildID, userID string) (channelID string, ok bool)
}

// SongStore is the song registry as seen by the commands.
type SongStore interface {
	Insert(ctx context.Context, videoID, title string) error
	FindByTitleContains(ctx context.Context, query string) []songs.Song
	All(ctx context.Context) []songs.Song
}

// Resolver turns play input into something playable.
type Resolver interface {
	Resolve(ctx context.Context, input string) resolve.Resolution
}

// Compile-time interface checks.
var (
	_ Player    = (*player.Manager)(nil)
	_ SongStore = (*songs.Registry)(nil)
	_ Resolver  = (*resolve.Resolver)(nil)
)

// MusicConfig holds the dependencies of [MusicCommands].
type MusicConfig struct {
	Resolver Resolver
	Songs    SongStore
	Titles   ytdlp.TitleResolver
	Player   Player
	Voice    VoiceLocator

	// Perms gates register. Nil allows everyone.
	Perms *discord.PermissionChecker

	// Prefix returns the current text command prefix for help output.
	// Nil means [discord.DefaultPrefix].
	Prefix func() string

	Metrics *observe.Metrics
}

// MusicCommands implements play, register, skip, stop, help and songs.
type MusicCommands struct {
	cfg MusicConfig
}

// NewMusicCommands creates the command set.
func NewMusicCommands(cfg MusicConfig) *MusicCommands {
	return &MusicCommands{cfg: cfg}
}

// Play resolves text and enqueues the result in the invoker's voice channel.
func (mc *MusicCommands) Play(ctx context.Context, inv discord.Invocation, text string) string {
	return mc.run(ctx, "play", inv, func(ctx context.Context) (string, string) {
		if inv.GuildID == "" {
			return msgNotInGuild, observe.StatusInvalid
		}
		channelID, ok := mc.cfg.Voice.VoiceChannelOf(inv.GuildID, inv.UserID)
		if !ok {
			return msgNotInVoice, observe.StatusInvalid
		}

		res := mc.cfg.Resolver.Resolve(ctx, text)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("resolution", res.Outcome.String()))
		switch res.Outcome {
		case resolve.Empty:
			if len(res.Suggestions) > 0 {
				return fmt.Sprintf("%s. Did you mean: %s?", msgNoMatch, strings.Join(res.Suggestions, ", ")), observe.StatusOK
			}
			return msgNoMatch, observe.StatusOK
		case resolve.Ambiguous:
			titles := make([]string, len(res.Matches))
			for i, s := range res.Matches {
				titles[i] = s.Title
			}
			return truncate(fmt.Sprintf("More than one video was found: %s. Be more specific", strings.Join(titles, ", "))), observe.StatusOK
		}

		got, err := mc.cfg.Player.Enqueue(ctx, inv.GuildID, channelID, player.Track{URL: res.URL, Title: res.Song.Title})
		switch {
		case errors.Is(err, player.ErrNotConnected):
			observe.Logger(ctx).Warn("commands: voice join failed", "channel_id", channelID, "err", err)
			return msgCannotJoin, observe.StatusError
		case err != nil:
			observe.Logger(ctx).Warn("commands: enqueue failed", "url", res.URL, "err", err)
			return fmt.Sprintf("Could not play this video. %v", err), observe.StatusError
		}
		return fmt.Sprintf("Added '%s' in queue position %d", got.Title, got.Position), observe.StatusOK
	})
}

// RegisterSong looks up the title of the video at the first word of args and
// stores it in the registry.
func (mc *MusicCommands) RegisterSong(ctx context.Context, inv discord.Invocation, args string) string {
	return mc.run(ctx, "register", inv, func(ctx context.Context) (string, string) {
		if !mc.cfg.Perms.IsDJ(inv.Member) {
			return msgNotDJ, observe.StatusInvalid
		}
		fields := strings.Fields(args)
		if len(fields) == 0 {
			return msgMissingURL, observe.StatusInvalid
		}
		url := fields[0]

		videoID, err := resolve.VideoID(url)
		if err != nil {
			return fmt.Sprintf("Could not store video in database. %v", err), observe.StatusInvalid
		}

		// Looked up before touching the registry; it may take seconds.
		title, err := mc.cfg.Titles.Title(ctx, url)
		if err != nil {
			observe.Logger(ctx).Warn("commands: title lookup failed", "url", url, "err", err)
			return fmt.Sprintf("Could not retrieve video name. %v", err), observe.StatusError
		}

		switch err := mc.cfg.Songs.Insert(ctx, videoID, title); {
		case errors.Is(err, songs.ErrDuplicateKey):
			return fmt.Sprintf("Could not store video in database. '%s' is already registered.", title), observe.StatusDuplicate
		case err != nil:
			observe.Logger(ctx).Error("commands: register failed", "video_id", videoID, "err", err)
			return fmt.Sprintf("Could not store video in database. %v", err), observe.StatusError
		}
		observe.Logger(ctx).Info("commands: song registered", "video_id", videoID, "title", title, "user_id", inv.UserID)
		return msgRegistered, observe.StatusOK
	})
}

// Skip ends the current song of the guild.
func (mc *MusicCommands) Skip(ctx context.Context, inv discord.Invocation) string {
	return mc.run(ctx, "skip", inv, func(context.Context) (string, string) {
		remaining, err := mc.cfg.Player.Skip(inv.GuildID)
		switch {
		case err != nil:
			return msgNothingPlaying, observe.StatusInvalid
		case remaining == 0:
			return msgSkippedLast, observe.StatusOK
		}
		return msgSkipped, observe.StatusOK
	})
}

// Stop ends the current song and clears the queue.
func (mc *MusicCommands) Stop(ctx context.Context, inv discord.Invocation) string {
	return mc.run(ctx, "stop", inv, func(context.Context) (string, string) {
		if err := mc.cfg.Player.Stop(inv.GuildID); err != nil {
			return msgNothingPlaying, observe.StatusInvalid
		}
		return msgStopped, observe.StatusOK
	})
}

// Help lists every command.
func (mc *MusicCommands) Help(ctx context.Context, inv discord.Invocation) string {
	return mc.run(ctx, "help", inv, func(context.Context) (string, string) {
		p := discord.DefaultPrefix
		if mc.cfg.Prefix != nil {
			p = mc.cfg.Prefix()
		}
		lines := []string{
			p + "help = show this message",
			p + "play <YouTube URL or song name> = add the given link, or the registered song matching the name, to the queue",
			p + "register <YouTube URL> = store the video's title so it can be played by name (short: " + p + "reg)",
			p + "skip = skip the currently playing song and go to the next one in the queue",
			p + "stop = stop the current song and clear the queue",
			p + "songs = list all registered songs",
			"Every command is also available as a slash command.",
		}
		return strings.Join(lines, "\n"), observe.StatusOK
	})
}

// Songs lists the registered songs in registration order.
func (mc *MusicCommands) Songs(ctx context.Context, inv discord.Invocation) string {
	return mc.run(ctx, "songs", inv, func(ctx context.Context) (string, string) {
		all := mc.cfg.Songs.All(ctx)
		if len(all) == 0 {
			return msgNoSongs, observe.StatusOK
		}
		var b strings.Builder
		b.WriteString("Registered songs:")
		for i, s := range all {
			line := "\n- " + s.Title
			if b.Len()+len(line) > maxReplyLen {
				fmt.Fprintf(&b, "\n...and %d more", len(all)-i)
				break
			}
			b.WriteString(line)
		}
		return b.String(), observe.StatusOK
	})
}

// Suggest returns registered titles containing query, for autocomplete.
func (mc *MusicCommands) Suggest(ctx context.Context, query string, limit int) []string {
	var titles []string
	for _, s := range mc.cfg.Songs.FindByTitleContains(ctx, strings.TrimSpace(query)) {
		if len(titles) == limit {
			break
		}
		titles = append(titles, s.Title)
	}
	return titles
}

// run wraps a command in a span, records its duration and outcome, and
// returns its reply.
func (mc *MusicCommands) run(ctx context.Context, name string, inv discord.Invocation, fn func(context.Context) (reply, status string)) string {
	start := time.Now()
	ctx = observe.WithGuild(ctx, inv.GuildID)
	ctx, span := observe.StartSpan(ctx, "command."+name,
		trace.WithAttributes(
			attribute.String("command", name),
			attribute.String("guild_id", inv.GuildID),
			attribute.String("user_id", inv.UserID),
		),
	)
	defer span.End()

	reply, status := fn(ctx)
	span.SetAttributes(attribute.String("status", status))
	mc.cfg.Metrics.RecordCommand(ctx, name, status, time.Since(start))
	observe.Logger(ctx).Debug("commands: handled", "command", name, "status", status, "user_id", inv.UserID)
	return reply
}

func truncate(s string) string {
	if len(s) <= maxReplyLen {
		return s
	}
	cut := maxReplyLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
