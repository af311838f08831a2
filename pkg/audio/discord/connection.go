package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/dmbot/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const (
	// outputChannelBuffer holds ~160 ms of audio. Kept small so that Flush
	// plus the writer stopping is enough for a skip to be heard at once.
	outputChannelBuffer = 8

	// idleAfter is how long the output may stay empty before the bot stops
	// signalling that it is speaking.
	idleAfter = 250 * time.Millisecond

	// silenceFrames is the number of Opus silence frames Discord expects
	// after a transmission ends, to avoid interpolation artefacts.
	silenceFrames = 5
)

// opusSilence is a single 20 ms Opus silence frame.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. It encodes outgoing PCM frames to Opus and
// keeps Discord's speaking indicator in sync with the audio.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc *discordgo.VoiceConnection

	output chan audio.AudioFrame

	mu        sync.Mutex
	channelID string

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC is called during Disconnect to tear down the voice
	// connection. Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error

	// changeChannel moves the voice connection. Defaults to
	// vc.ChangeChannel; overridden in tests.
	changeChannel func(channelID string) error

	// speaking notifies Discord. Defaults to vc.Speaking; overridden in tests.
	speaking func(bool) error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the send loop.
func newConnection(vc *discordgo.VoiceConnection) (*Connection, error) {
	c := &Connection{
		vc:           vc,
		output:       make(chan audio.AudioFrame, outputChannelBuffer),
		channelID:    vc.ChannelID,
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
		changeChannel: func(channelID string) error {
			return vc.ChangeChannel(channelID, false, true)
		},
		speaking: vc.Speaking,
	}

	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	go c.sendLoop(enc)
	return c, nil
}

// OutputStream returns the write-only channel for playback audio.
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// Flush discards all frames that are buffered but not yet encoded.
func (c *Connection) Flush() {
	for {
		select {
		case <-c.output:
		default:
			return
		}
	}
}

// ChannelID returns the voice channel the connection is in.
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Move switches to another voice channel of the same guild.
func (c *Connection) Move(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("discord: move to %q: %w", channelID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelID == channelID {
		return nil
	}
	if err := c.changeChannel(channelID); err != nil {
		return fmt.Errorf("discord: move to %q: %w", channelID, err)
	}
	c.channelID = channelID
	return nil
}

// Disconnect leaves the voice channel and stops the send loop. It is safe to
// call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// sendLoop reads PCM frames from the output channel, cuts them into exact
// Opus frame-sized chunks, encodes them and sends the packets to Discord.
// OpusSend is drained by discordgo at one packet per 20 ms, which paces the
// whole pipeline.
func (c *Connection) sendLoop(enc *opusEncoder) {
	speakingSet := false
	idle := time.NewTimer(idleAfter)
	defer idle.Stop()

	var buf []byte

	for {
		select {
		case <-c.done:
			if speakingSet {
				c.setSpeaking(false)
			}
			return

		case <-idle.C:
			if !speakingSet {
				continue
			}
			// Track ended or was skipped: drop any partial frame and close
			// the transmission with silence.
			buf = buf[:0]
			for range silenceFrames {
				if !c.send(opusSilence) {
					return
				}
			}
			c.setSpeaking(false)
			speakingSet = false

		case frame := <-c.output:
			if !speakingSet {
				c.setSpeaking(true)
				speakingSet = true
			}
			idle.Reset(idleAfter)

			buf = append(buf, frame.Data...)
			for len(buf) >= audio.FrameBytes {
				packet, err := enc.encode(buf[:audio.FrameBytes])
				buf = buf[audio.FrameBytes:]
				if err != nil {
					slog.Warn("discord: opus encode error", "err", err)
					continue
				}
				if !c.send(packet) {
					return
				}
			}
		}
	}
}

// send hands one Opus packet to discordgo. It returns false once the
// connection is closed.
func (c *Connection) send(packet []byte) bool {
	select {
	case c.vc.OpusSend <- packet:
		return true
	case <-c.done:
		return false
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}
