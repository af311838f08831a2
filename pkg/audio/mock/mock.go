// Package mock provides in-memory mock implementations of the
// [audio.Platform] and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	platform := &mock.Platform{}
//	conn, err := platform.Connect(ctx, "guild-1", "channel-42")
//	// ... write frames to conn.OutputStream() ...
//	got := platform.Connections()[0].BytesReceived()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dmbot/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection]. Frames written
// to its output stream are consumed immediately and counted.
type Connection struct {
	mu sync.Mutex

	out       chan audio.AudioFrame
	channelID string
	frames    int
	bytes     int

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// MoveError is returned by [Connection.Move].
	MoveError error

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	// CallCountFlush records how many times Flush was called.
	CallCountFlush int

	// MoveCalls records the channel IDs passed to Move.
	MoveCalls []string

	done chan struct{}
	once sync.Once
}

// NewConnection returns a Connection in channelID whose output stream is
// drained by a background goroutine until Disconnect.
func NewConnection(channelID string) *Connection {
	c := &Connection{
		out:       make(chan audio.AudioFrame),
		channelID: channelID,
		done:      make(chan struct{}),
	}
	go c.drain()
	return c
}

func (c *Connection) drain() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			c.mu.Lock()
			c.frames++
			c.bytes += len(f.Data)
			c.mu.Unlock()
		}
	}
}

// OutputStream implements [audio.Connection].
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.out
}

// Flush implements [audio.Connection].
func (c *Connection) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountFlush++
}

// ChannelID implements [audio.Connection].
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Move implements [audio.Connection]. On success the channel ID changes.
func (c *Connection) Move(_ context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MoveCalls = append(c.MoveCalls, channelID)
	if c.MoveError != nil {
		return c.MoveError
	}
	c.channelID = channelID
	return nil
}

// Disconnect implements [audio.Connection]. Returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.once.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// FramesReceived returns how many frames were written to the output stream.
func (c *Connection) FramesReceived() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// BytesReceived returns the total PCM bytes written to the output stream.
func (c *Connection) BytesReceived() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Disconnected reports whether Disconnect has been called.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect > 0
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform]. Unless
// ConnectError is set, every Connect returns a fresh [Connection].
type Platform struct {
	mu sync.Mutex

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall

	conns []*Connection
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(_ context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	c := NewConnection(channelID)
	p.conns = append(p.conns, c)
	return c, nil
}

// Connections returns every Connection handed out so far, oldest first.
func (p *Platform) Connections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Connection(nil), p.conns...)
}

// ConnectCount returns how many times Connect was called.
func (p *Platform) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}
