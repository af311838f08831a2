// Package app wires all dmbot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the Discord gateway and the ops HTTP server until
// the context ends, and Shutdown tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithBot,
// WithRegistry, WithStreamer, ...). When an option is not provided, New
// builds the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dmbot/internal/config"
	"github.com/MrWong99/dmbot/internal/discord"
	"github.com/MrWong99/dmbot/internal/discord/commands"
	"github.com/MrWong99/dmbot/internal/health"
	"github.com/MrWong99/dmbot/internal/observe"
	"github.com/MrWong99/dmbot/internal/player"
	"github.com/MrWong99/dmbot/internal/resilience"
	"github.com/MrWong99/dmbot/internal/resolve"
	"github.com/MrWong99/dmbot/internal/songs"
	"github.com/MrWong99/dmbot/internal/ytdlp"
	"github.com/MrWong99/dmbot/pkg/audio"
)

// serverShutdownTimeout bounds the ops server drain when Run returns.
const serverShutdownTimeout = 5 * time.Second

// Bot is the Discord side of the application.
type Bot interface {
	Platform() audio.Platform
	Router() *discord.CommandRouter
	Permissions() *discord.PermissionChecker
	VoiceChannelOf(guildID, userID string) (string, bool)
	Ready() bool
	Run(ctx context.Context) error
	Close() error
}

var _ Bot = (*discord.Bot)(nil)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	levels    *slog.LevelVar
	telemetry *observe.Provider
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	bot      Bot
	registry *songs.Registry
	titles   ytdlp.TitleResolver
	streamer ytdlp.Streamer
	player   *player.Manager
	music    *commands.MusicCommands
	health   *health.Handler
	ops      http.Handler
	listener net.Listener

	// closers run in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBot injects the Discord bot instead of connecting one from config.
func WithBot(b Bot) Option {
	return func(a *App) { a.bot = b }
}

// WithRegistry injects a song registry instead of opening one from config.
// The caller keeps ownership: Shutdown does not close it.
func WithRegistry(r *songs.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithTitleResolver injects the title lookup instead of running yt-dlp.
func WithTitleResolver(r ytdlp.TitleResolver) Option {
	return func(a *App) { a.titles = r }
}

// WithStreamer injects the audio source instead of the yt-dlp | ffmpeg pipe.
func WithStreamer(s ytdlp.Streamer) Option {
	return func(a *App) { a.streamer = s }
}

// WithTelemetry wires metrics and the /metrics endpoint. The caller keeps
// ownership of p and shuts it down after the App.
func WithTelemetry(p *observe.Provider) Option {
	return func(a *App) { a.telemetry = p }
}

// WithLevelVar lets [App.Apply] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// WithListener serves the ops endpoints on l instead of listening on
// cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
//
// Order: song registry, yt-dlp tooling, Discord bot, player, commands, ops
// endpoints. A failure closes whatever was already opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.telemetry != nil {
		a.metrics = a.telemetry.Metrics
	}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	// ── 1. Song registry ─────────────────────────────────────────────────
	if err := a.initRegistry(ctx); err != nil {
		return nil, fmt.Errorf("app: init registry: %w", err)
	}

	// ── 2. yt-dlp ────────────────────────────────────────────────────────
	a.initYTDLP()

	// ── 3. Discord ───────────────────────────────────────────────────────
	if err := a.initBot(ctx); err != nil {
		return nil, fmt.Errorf("app: init discord: %w", err)
	}

	// ── 4. Player ────────────────────────────────────────────────────────
	a.player = player.NewManager(a.bot.Platform(), a.streamer,
		player.WithMetrics(a.metrics),
		player.WithTitleResolver(a.titles),
	)
	a.closers = append(a.closers, a.player.Close)

	// ── 5. Commands ──────────────────────────────────────────────────────
	router := a.bot.Router()
	a.music = commands.NewMusicCommands(commands.MusicConfig{
		Resolver: resolve.New(a.registry),
		Songs:    a.registry,
		Titles:   a.titles,
		Player:   a.player,
		Voice:    a.bot,
		Perms:    a.bot.Permissions(),
		Prefix:   router.Prefix,
		Metrics:  a.metrics,
	})
	a.music.Register(router)

	// ── 6. Ops endpoints ─────────────────────────────────────────────────
	a.health = health.New(
		health.Checker{Name: "songs", Check: a.registry.Ping},
		health.Flag("discord", a.bot.Ready),
	)
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.telemetry != nil && a.telemetry.Handler != nil {
		mux.Handle("GET /metrics", a.telemetry.Handler)
	}
	a.ops = observe.Middleware(a.metrics)(mux)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initRegistry(ctx context.Context) error {
	if a.registry != nil {
		return nil
	}
	reg, err := songs.Open(ctx, a.cfg.Songs(), songs.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.registry = reg
	a.closers = append(a.closers, reg.Close)
	slog.Info("song registry opened", "driver", a.cfg.Storage.Driver)
	return nil
}

// initYTDLP builds the title lookup and the stream source. Both share one
// spawn limiter so a burst of commands cannot fork unbounded processes.
// Title lookups go cache, then circuit breaker, then yt-dlp.
func (a *App) initYTDLP() {
	if a.titles != nil && a.streamer != nil {
		return
	}
	yc := a.cfg.YTDLP
	limiter := ytdlp.NewLimiter(yc.SpawnsPerSecond)

	if a.titles == nil {
		runner := ytdlp.NewRunner(
			ytdlp.WithBinary(yc.Binary),
			ytdlp.WithTimeout(yc.Timeout),
			ytdlp.WithLimiter(limiter),
			ytdlp.WithMetrics(a.metrics),
		)
		guarded := resilience.NewTitleGuard(runner, resilience.CircuitBreakerConfig{Name: "yt-dlp"})
		a.titles = ytdlp.NewCachedResolver(guarded, yc.TitleCacheTTL)
	}
	if a.streamer == nil {
		a.streamer = &ytdlp.PipeStreamer{
			YTDLP:   yc.Binary,
			FFmpeg:  yc.FFmpegBinary,
			Limiter: limiter,
		}
	}
}

func (a *App) initBot(ctx context.Context) error {
	if a.bot != nil {
		return nil
	}
	bot, err := discord.New(ctx, discord.Config{
		Token:    a.cfg.Discord.Token,
		GuildID:  a.cfg.Discord.GuildID,
		Prefix:   a.cfg.Discord.Prefix,
		DJRoleID: a.cfg.Discord.DJRoleID,
	})
	if err != nil {
		return err
	}
	a.bot = bot
	a.closers = append(a.closers, bot.Close)
	slog.Info("discord bot connected", "guild_id", a.cfg.Discord.GuildID)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the ops HTTP handler serving /healthz, /readyz and, with
// telemetry, /metrics.
func (a *App) Handler() http.Handler {
	return a.ops
}

// Player returns the playback manager.
func (a *App) Player() *player.Manager {
	return a.player
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run registers the slash commands, serves the ops endpoints when
// configured, and blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.bot.Run(gctx)
	})

	srv, ln, err := a.opsServer()
	if err != nil {
		return err
	}
	if srv != nil {
		g.Go(func() error {
			slog.Info("ops server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("dmbot running", "prefix", a.bot.Router().Prefix())
	return g.Wait()
}

func (a *App) opsServer() (*http.Server, net.Listener, error) {
	ln := a.listener
	if ln == nil {
		if a.cfg.Server.ListenAddr == "" {
			return nil, nil, nil
		}
		var err error
		if ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr); err != nil {
			return nil, nil, fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	return &http.Server{Handler: a.ops, ReadHeaderTimeout: 10 * time.Second}, ln, nil
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// Apply takes over the runtime-changeable parts of a reloaded config: the
// log level and the command prefix. Everything else is only logged.
func (a *App) Apply(d config.ConfigDiff, _ *config.Config) {
	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PrefixChanged {
		a.bot.Router().SetPrefix(d.NewPrefix)
		slog.Info("command prefix changed", "prefix", d.NewPrefix)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "settings", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order: the player
// leaves every voice channel before the gateway closes, and the registry
// closes last. If ctx expires first, the remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
}
