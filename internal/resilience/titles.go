package resilience

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"

	"github.com/MrWong99/dmbot/internal/ytdlp"
)

var _ ytdlp.TitleResolver = (*TitleGuard)(nil)

// TitleGuard fronts a [ytdlp.TitleResolver] with a [CircuitBreaker]. Only
// tool outages count against the breaker (see [IsToolOutage]); a user
// pasting a dead link does not.
type TitleGuard struct {
	next ytdlp.TitleResolver
	cb   *CircuitBreaker
}

// NewTitleGuard wraps next. cfg.IsFailure defaults to [IsToolOutage].
func NewTitleGuard(next ytdlp.TitleResolver, cfg CircuitBreakerConfig) *TitleGuard {
	if cfg.Name == "" {
		cfg.Name = "yt-dlp"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsToolOutage
	}
	return &TitleGuard{next: next, cb: NewCircuitBreaker(cfg)}
}

// Title implements [ytdlp.TitleResolver]. While the breaker is open it fails
// with an error matching both [ytdlp.ErrToolFailure] and [ErrCircuitOpen].
func (g *TitleGuard) Title(ctx context.Context, url string) (string, error) {
	var title string
	err := g.cb.Execute(func() error {
		var err error
		title, err = g.next.Title(ctx, url)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return "", fmt.Errorf("%w: %w", ytdlp.ErrToolFailure, err)
	}
	return title, err
}

// State reports the breaker state.
func (g *TitleGuard) State() State {
	return g.cb.State()
}

// IsToolOutage reports whether err means the tool itself is unusable: it
// timed out or its binary is missing. Caller cancellation is not an outage.
func IsToolOutage(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, exec.ErrNotFound),
		errors.Is(err, fs.ErrNotExist):
		return true
	}
	return false
}
