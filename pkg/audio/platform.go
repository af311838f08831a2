// Package audio defines the interfaces and types for voice platform
// connectivity within dmbot.
//
// The two primary abstractions are:
//
//   - [Platform] joins a voice channel and returns a [Connection].
//   - [Connection] represents the bot's presence in that channel and accepts
//     a stream of PCM frames to play.
//
// Implementations are provided by platform-specific adapter packages (e.g.,
// audio/discord). The interfaces are intentionally narrow so that the player
// can be tested without a live voice gateway.
//
// This package lives under pkg/ because external code is expected to
// implement [Platform] and [Connection] for other chat platforms.
package audio

import (
	"context"
)

// Connection represents an active session on a voice channel.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// OutputStream returns the write-only channel for playback audio. Frames
	// written here are encoded and sent to the channel in order. The channel
	// is buffered; writes block once the buffer is full, which paces the
	// writer at real-time speed.
	//
	// Ownership: the platform never closes this channel, so writing after
	// Disconnect never panics. Nothing drains it after Disconnect either:
	// once the buffer is full a write blocks, so writers select on their own
	// cancellation as well.
	OutputStream() chan<- AudioFrame

	// Flush discards frames that were written but not yet sent, so that a
	// skipped track stops immediately.
	Flush()

	// ChannelID returns the voice channel the connection is currently in.
	ChannelID() string

	// Move switches the connection to another voice channel of the same
	// guild without interrupting the output stream.
	Move(ctx context.Context, channelID string) error

	// Disconnect leaves the voice channel and stops all background work. It
	// is safe to call more than once; subsequent calls return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel channelID of guild guildID and returns
	// an active [Connection]. The supplied ctx governs the connection attempt
	// only; once connected, the Connection remains alive until
	// [Connection.Disconnect] is called.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
