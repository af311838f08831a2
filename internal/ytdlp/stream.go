package ytdlp

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// PCM format produced by [PipeStreamer]: signed 16-bit little-endian,
// interleaved stereo at 48 kHz, which is what the Opus encoder expects.
const (
	SampleRate = 48000
	Channels   = 2
)

// Streamer opens a raw PCM stream for a URL. Closing the returned reader
// stops the underlying download.
type Streamer interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Compile-time interface check.
var _ Streamer = (*PipeStreamer)(nil)

// PipeStreamer downloads the best audio format with yt-dlp and pipes it
// through ffmpeg, which decodes it to PCM.
type PipeStreamer struct {
	// YTDLP is the yt-dlp executable. Default: "yt-dlp".
	YTDLP string

	// FFmpeg is the ffmpeg executable. Default: "ffmpeg".
	FFmpeg string

	// Limiter, when set, throttles process spawns.
	Limiter *rate.Limiter
}

// Open starts `yt-dlp -o - | ffmpeg -f s16le` for url. The processes are
// bound to ctx: cancelling it kills both.
func (s *PipeStreamer) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("ytdlp: wait for spawn slot: %w", err)
		}
	}

	ytdlpBin, ffmpegBin := s.YTDLP, s.FFmpeg
	if ytdlpBin == "" {
		ytdlpBin = DefaultBinary
	}
	if ffmpegBin == "" {
		ffmpegBin = DefaultFFmpegBinary
	}

	dl := exec.CommandContext(ctx, ytdlpBin,
		"-o", "-",
		"-f", "bestaudio",
		"--no-playlist",
		"--quiet",
		"--", url,
	)
	enc := exec.CommandContext(ctx, ffmpegBin,
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	encIn, err := dl.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ytdlp: yt-dlp stdout pipe: %w", err)
	}
	enc.Stdin = encIn

	out, err := enc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ytdlp: ffmpeg stdout pipe: %w", err)
	}

	if err := dl.Start(); err != nil {
		return nil, fmt.Errorf("%w: start yt-dlp: %w", ErrToolFailure, err)
	}
	if err := enc.Start(); err != nil {
		_ = dl.Process.Kill()
		_ = dl.Wait()
		return nil, fmt.Errorf("%w: start ffmpeg: %w", ErrToolFailure, err)
	}

	return &pipeStream{ReadCloser: out, dl: dl, enc: enc}, nil
}

// pipeStream reads ffmpeg's stdout and reaps both processes on Close.
type pipeStream struct {
	io.ReadCloser
	dl, enc *exec.Cmd

	once sync.Once
}

// Close kills both processes and waits for them. It is safe to call more
// than once.
func (p *pipeStream) Close() error {
	p.once.Do(func() {
		_ = p.enc.Process.Kill()
		_ = p.dl.Process.Kill()
		_ = p.enc.Wait()
		_ = p.dl.Wait()
	})
	return nil
}
