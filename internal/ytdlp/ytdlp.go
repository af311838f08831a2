// Package ytdlp wraps the yt-dlp and ffmpeg command line tools.
//
// [Runner] looks up the title of a video URL for song registration, and
// [PipeStreamer] turns a URL into a raw PCM stream for playback. Both spawn
// subprocesses, so both share a [rate.Limiter] that bounds how many
// processes the bot starts per second.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/dmbot/internal/observe"
)

// Sentinel errors. Callers use errors.Is.
var (
	// ErrToolFailure means the external tool could not be started, exited
	// non-zero, or timed out.
	ErrToolFailure = errors.New("yt-dlp failed")

	// ErrEmptyTitle means the tool succeeded but printed no title.
	ErrEmptyTitle = errors.New("yt-dlp returned an empty title")
)

// TitleResolver looks up the human readable title of a video URL.
type TitleResolver interface {
	Title(ctx context.Context, url string) (string, error)
}

// Compile-time interface check.
var _ TitleResolver = (*Runner)(nil)

// Default settings for [Runner] and [PipeStreamer].
const (
	DefaultBinary          = "yt-dlp"
	DefaultFFmpegBinary    = "ffmpeg"
	DefaultTimeout         = 30 * time.Second
	DefaultSpawnsPerSecond = 2.0
)

// NewLimiter returns a limiter allowing perSecond process spawns per second
// with a burst of one. A non-positive rate disables limiting.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Option configures a [Runner].
type Option func(*Runner)

// WithBinary sets the yt-dlp executable. Default: "yt-dlp" from PATH.
func WithBinary(path string) Option {
	return func(r *Runner) { r.binary = path }
}

// WithTimeout bounds a single title lookup. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithLimiter shares a spawn limiter with other subprocess users.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// WithMetrics records every invocation.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner resolves titles by running `yt-dlp --get-title`. It is safe for
// concurrent use.
type Runner struct {
	binary  string
	timeout time.Duration
	limiter *rate.Limiter
	metrics *observe.Metrics
}

// NewRunner returns a Runner with the given options applied.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		binary:  DefaultBinary,
		timeout: DefaultTimeout,
		limiter: NewLimiter(DefaultSpawnsPerSecond),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Title runs yt-dlp for url and returns the first non-blank line it prints,
// trimmed of surrounding whitespace.
func (r *Runner) Title(ctx context.Context, url string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ytdlp: wait for spawn slot: %w", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, "--get-title", "--no-warnings", "--no-playlist", "--", url)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		r.metrics.RecordToolRun(ctx, "yt-dlp", observe.StatusError, time.Since(start))
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrToolFailure, ctx.Err())
		}
		if msg := lastLine(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrToolFailure, msg)
		}
		return "", fmt.Errorf("%w: %w", ErrToolFailure, err)
	}

	title := firstLine(stdout.String())
	if title == "" {
		r.metrics.RecordToolRun(ctx, "yt-dlp", observe.StatusError, time.Since(start))
		return "", ErrEmptyTitle
	}
	r.metrics.RecordToolRun(ctx, "yt-dlp", observe.StatusOK, time.Since(start))
	return title, nil
}

// firstLine returns the first non-blank line of s, trimmed.
func firstLine(s string) string {
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}

// lastLine returns the last non-blank line of s, trimmed. yt-dlp prints the
// relevant "ERROR: ..." line last.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
