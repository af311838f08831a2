// Package player keeps one playback queue per guild and streams queued
// tracks into the guild's voice connection.
//
// The first track enqueued for a guild joins the caller's voice channel.
// Tracks are played in order; a track that fails to open or breaks midway is
// logged, counted in dmbot.track.errors and skipped. Once a queue has been
// empty for the idle timeout, the bot leaves the voice channel.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/dmbot/internal/observe"
	"github.com/MrWong99/dmbot/internal/ytdlp"
	"github.com/MrWong99/dmbot/pkg/audio"
)

// Sentinel errors. Callers use errors.Is.
var (
	// ErrNotConnected means the bot has no voice connection in the guild.
	ErrNotConnected = errors.New("player: not connected to a voice channel")

	// ErrNothingPlaying means there is no current track to act on.
	ErrNothingPlaying = errors.New("player: nothing is playing")

	// ErrClosed is returned after [Manager.Close].
	ErrClosed = errors.New("player: closed")

	// errQueueGone signals that a queue shut down between lookup and use.
	errQueueGone = errors.New("player: queue shut down")
)

// DefaultIdleTimeout is how long a guild may sit with an empty queue before
// the bot leaves its voice channel.
const DefaultIdleTimeout = 5 * time.Minute

// Track is one queued item.
type Track struct {
	// URL is passed to the [ytdlp.Streamer].
	URL string

	// Title is shown to users. When empty, the manager looks it up.
	Title string
}

// Enqueued describes the result of [Manager.Enqueue].
type Enqueued struct {
	Title string

	// Position is the queue length after the track was added, counting the
	// track that is currently playing. The first track of an idle guild is
	// at position 1.
	Position int
}

// Option configures a [Manager].
type Option func(*Manager)

// WithMetrics records enqueues, track errors and voice connections.
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithTitleResolver looks up titles for tracks enqueued without one.
func WithTitleResolver(r ytdlp.TitleResolver) Option {
	return func(mgr *Manager) { mgr.titles = r }
}

// WithIdleTimeout sets how long an empty queue keeps its voice connection.
// Default: [DefaultIdleTimeout].
func WithIdleTimeout(d time.Duration) Option {
	return func(mgr *Manager) { mgr.idleTimeout = d }
}

// Manager owns the per-guild queues. It is safe for concurrent use.
type Manager struct {
	platform    audio.Platform
	streamer    ytdlp.Streamer
	titles      ytdlp.TitleResolver
	metrics     *observe.Metrics
	idleTimeout time.Duration

	// ctx bounds every playback goroutine; it is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]*queue
	closed bool

	wg sync.WaitGroup
}

// NewManager returns a Manager that joins voice through platform and opens
// audio through streamer.
func NewManager(platform audio.Platform, streamer ytdlp.Streamer, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		platform:    platform,
		streamer:    streamer,
		idleTimeout: DefaultIdleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		queues:      make(map[string]*queue),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Enqueue appends t to the guild's queue, joining channelID first when the
// bot is not yet connected there. ctx bounds the title lookup and the voice
// join only; playback continues after it is cancelled.
func (m *Manager) Enqueue(ctx context.Context, guildID, channelID string, t Track) (Enqueued, error) {
	if t.Title == "" {
		t.Title = m.lookupTitle(ctx, t.URL)
	}

	for {
		q, err := m.queueFor(guildID)
		if err != nil {
			return Enqueued{}, err
		}
		pos, err := q.enqueue(ctx, channelID, t)
		if errors.Is(err, errQueueGone) {
			continue
		}
		if err != nil {
			return Enqueued{}, err
		}
		m.metrics.RecordTrackEnqueued(ctx)
		return Enqueued{Title: t.Title, Position: pos}, nil
	}
}

// Skip ends the current track of the guild. It returns how many tracks are
// still waiting.
func (m *Manager) Skip(guildID string) (remaining int, err error) {
	q := m.lookup(guildID)
	if q == nil {
		return 0, ErrNothingPlaying
	}
	return q.skip()
}

// Stop ends the current track and clears the guild's queue. The voice
// connection stays open until the idle timeout.
func (m *Manager) Stop(guildID string) error {
	q := m.lookup(guildID)
	if q == nil {
		return ErrNotConnected
	}
	q.stop()
	return nil
}

// QueueLen returns the number of tracks of the guild, counting the one that
// is playing.
func (m *Manager) QueueLen(guildID string) int {
	q := m.lookup(guildID)
	if q == nil {
		return 0
	}
	return q.len()
}

// Connected reports whether the bot holds a voice connection in the guild.
func (m *Manager) Connected(guildID string) bool {
	q := m.lookup(guildID)
	return q != nil && q.connected()
}

// Close stops all playback and leaves every voice channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	queues := m.queues
	m.queues = make(map[string]*queue)
	m.mu.Unlock()

	m.cancel()
	var errs []error
	for _, q := range queues {
		if err := q.shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) lookupTitle(ctx context.Context, url string) string {
	if m.titles == nil {
		return url
	}
	title, err := m.titles.Title(ctx, url)
	if err != nil {
		observe.Logger(ctx).Warn("player: title lookup failed, using url", "url", url, "err", err)
		return url
	}
	return title
}

func (m *Manager) lookup(guildID string) *queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[guildID]
}

func (m *Manager) queueFor(guildID string) (*queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	q, ok := m.queues[guildID]
	if !ok {
		q = newQueue(m, guildID)
		m.queues[guildID] = q
	}
	return q, nil
}

// release removes q after it shut itself down for idleness.
func (m *Manager) release(guildID string, q *queue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queues[guildID] == q {
		delete(m.queues, guildID)
	}
}

// connect joins the voice channel, recording the outcome.
func (m *Manager) connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	conn, err := m.platform.Connect(ctx, guildID, channelID)
	if err != nil {
		m.metrics.RecordTrackError(ctx, "connect")
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	m.metrics.AddVoiceConnections(ctx, 1)
	return conn, nil
}
