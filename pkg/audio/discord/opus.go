package discord

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/dmbot/pkg/audio"
)

// opusBitrate is the encoder bitrate in bits per second. 96 kbit/s is the
// default bitrate of a Discord voice channel without server boosts.
const opusBitrate = 96000

// maxOpusPacket is the upper bound for one encoded packet.
const maxOpusPacket = 4000

// opusEncoder wraps a gopus Opus encoder for the output stream.
type opusEncoder struct {
	enc *gopus.Encoder
	pcm []int16
}

// newOpusEncoder creates a new Opus encoder configured for Discord audio.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	enc.SetBitrate(opusBitrate)
	return &opusEncoder{enc: enc, pcm: make([]int16, audio.FrameSamples*audio.Channels)}, nil
}

// encode encodes exactly one frame of interleaved little-endian int16 PCM.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	if len(pcmBytes) != audio.FrameBytes {
		return nil, fmt.Errorf("discord: opus encode: got %d bytes, want %d", len(pcmBytes), audio.FrameBytes)
	}
	for i := range e.pcm {
		e.pcm[i] = int16(binary.LittleEndian.Uint16(pcmBytes[i*2:]))
	}
	packet, err := e.enc.Encode(e.pcm, audio.FrameSamples, maxOpusPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return packet, nil
}
