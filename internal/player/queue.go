package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/dmbot/internal/observe"
	"github.com/MrWong99/dmbot/pkg/audio"
)

// queue is the playback state of one guild. At most one run goroutine exists
// per queue at a time.
type queue struct {
	m       *Manager
	guildID string

	mu          sync.Mutex
	conn        audio.Connection
	pending     []Track
	current     *Track
	cancelTrack context.CancelFunc
	running     bool
	idle        *time.Timer

	// gone is set once the queue has left voice. A gone queue is never
	// reused; Enqueue fetches a fresh one from the manager.
	gone bool
}

func newQueue(m *Manager, guildID string) *queue {
	return &queue{m: m, guildID: guildID}
}

func (q *queue) enqueue(ctx context.Context, channelID string, t Track) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.gone {
		return 0, errQueueGone
	}

	log := observe.Logger(ctx).With("guild_id", q.guildID, "channel_id", channelID)
	if q.conn == nil {
		conn, err := q.m.connect(ctx, q.guildID, channelID)
		if err != nil {
			q.gone = true
			q.m.release(q.guildID, q)
			return 0, err
		}
		q.conn = conn
		log.Info("player: joined voice channel")
	} else if q.conn.ChannelID() != channelID {
		if err := q.conn.Move(ctx, channelID); err != nil {
			log.Warn("player: move failed, staying in current channel",
				"current_channel_id", q.conn.ChannelID(), "err", err)
		}
	}

	if q.idle != nil {
		q.idle.Stop()
		q.idle = nil
	}

	q.pending = append(q.pending, t)
	pos := len(q.pending)
	if q.current != nil {
		pos++
	}

	if !q.running {
		q.running = true
		q.m.wg.Go(q.run)
	}
	return pos, nil
}

func (q *queue) skip() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return 0, ErrNothingPlaying
	}
	q.cancelTrack()
	q.conn.Flush()
	return len(q.pending), nil
}

func (q *queue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	if q.cancelTrack != nil {
		q.cancelTrack()
	}
	if q.conn != nil {
		q.conn.Flush()
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.current != nil {
		n++
	}
	return n
}

func (q *queue) connected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.conn != nil
}

// run plays pending tracks until the queue drains.
func (q *queue) run() {
	for {
		q.mu.Lock()
		if q.gone || len(q.pending) == 0 {
			q.running = false
			if !q.gone {
				q.armIdle()
			}
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		ctx, cancel := context.WithCancel(observe.WithGuild(q.m.ctx, q.guildID))
		q.current = &t
		q.cancelTrack = cancel
		conn := q.conn
		q.mu.Unlock()

		q.play(ctx, conn, t)
		cancel()

		q.mu.Lock()
		q.current = nil
		q.cancelTrack = nil
		q.mu.Unlock()
	}
}

// play streams one track into conn until it ends or ctx is cancelled.
func (q *queue) play(ctx context.Context, conn audio.Connection, t Track) {
	log := observe.Logger(ctx).With("url", t.URL, "title", t.Title)

	rc, err := q.m.streamer.Open(ctx, t.URL)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("player: open track failed", "err", err)
			q.m.metrics.RecordTrackError(ctx, "open")
		}
		return
	}
	defer rc.Close()
	// Unblocks a pending Read on skip or stop.
	stopClose := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stopClose()

	log.Info("player: track started")
	out := conn.OutputStream()
	var ts time.Duration
	for {
		buf := make([]byte, audio.FrameBytes)
		n, err := io.ReadFull(rc, buf)
		if n > 0 {
			select {
			case out <- audio.AudioFrame{Data: buf[:n], Timestamp: ts}:
				ts += audio.FrameDuration
			case <-ctx.Done():
				log.Debug("player: track interrupted")
				return
			}
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			log.Debug("player: track interrupted")
			return
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			log.Info("player: track finished", "played", ts)
			return
		default:
			log.Warn("player: track stream failed", "err", err)
			q.m.metrics.RecordTrackError(ctx, "stream")
			return
		}
	}
}

// armIdle schedules the idle disconnect. Must be called with q.mu held.
func (q *queue) armIdle() {
	if q.m.idleTimeout <= 0 {
		return
	}
	if q.idle != nil {
		q.idle.Stop()
	}
	q.idle = time.AfterFunc(q.m.idleTimeout, q.expire)
}

// expire leaves voice if the queue is still idle.
func (q *queue) expire() {
	q.mu.Lock()
	if q.gone || q.running || len(q.pending) > 0 {
		q.mu.Unlock()
		return
	}
	q.gone = true
	q.idle = nil
	conn := q.conn
	q.conn = nil
	q.mu.Unlock()

	q.m.release(q.guildID, q)
	if err := q.leave(conn); err != nil {
		observe.Logger(observe.WithGuild(q.m.ctx, q.guildID)).Warn("player: idle disconnect failed", "err", err)
		return
	}
	observe.Logger(observe.WithGuild(q.m.ctx, q.guildID)).Info("player: left idle voice channel")
}

// shutdown stops playback and leaves voice for good.
func (q *queue) shutdown() error {
	q.mu.Lock()
	q.gone = true
	q.pending = nil
	if q.cancelTrack != nil {
		q.cancelTrack()
	}
	if q.idle != nil {
		q.idle.Stop()
		q.idle = nil
	}
	conn := q.conn
	q.conn = nil
	q.mu.Unlock()

	return q.leave(conn)
}

func (q *queue) leave(conn audio.Connection) error {
	if conn == nil {
		return nil
	}
	q.m.metrics.AddVoiceConnections(q.m.ctx, -1)
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("player: leave voice in guild %s: %w", q.guildID, err)
	}
	return nil
}
