package audio

import "time"

// Playback format. Every [AudioFrame] written to a [Connection] carries
// signed 16-bit little-endian interleaved PCM in this format.
const (
	SampleRate = 48000
	Channels   = 2

	// FrameDuration is the length of one Opus frame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of samples per channel in one frame (960).
	FrameSamples = SampleRate * int(FrameDuration/time.Millisecond) / 1000

	// FrameBytes is the PCM size of one frame: 960 × 2 channels × 2 bytes.
	FrameBytes = FrameSamples * Channels * 2
)

// AudioFrame is a chunk of PCM audio. Frames are usually exactly
// [FrameBytes] long; connections buffer shorter ones until a full frame is
// available.
type AudioFrame struct {
	// Data is PCM in the playback format.
	Data []byte

	// Timestamp marks the position of the frame relative to track start.
	Timestamp time.Duration
}
