// Package mock provides in-memory implementations of [ytdlp.TitleResolver]
// and [ytdlp.Streamer] for unit tests. No subprocess is ever started.
//
// All mocks are safe for concurrent use and record every call.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/dmbot/internal/ytdlp"
)

// Compile-time interface checks.
var (
	_ ytdlp.TitleResolver = (*TitleResolver)(nil)
	_ ytdlp.Streamer      = (*Streamer)(nil)
)

// ─── TitleResolver ────────────────────────────────────────────────────────────

// TitleResolver returns scripted titles.
type TitleResolver struct {
	mu sync.Mutex

	// Titles maps URL to title. URLs not present resolve to
	// [ytdlp.ErrEmptyTitle] unless Err is set.
	Titles map[string]string

	// Err, when non-nil, is returned for every call.
	Err error

	// Calls records every URL passed to Title, in order.
	Calls []string
}

// Title implements [ytdlp.TitleResolver].
func (r *TitleResolver) Title(_ context.Context, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, url)
	if r.Err != nil {
		return "", r.Err
	}
	if t, ok := r.Titles[url]; ok {
		return t, nil
	}
	return "", ytdlp.ErrEmptyTitle
}

// CallCount returns how many times Title was called.
func (r *TitleResolver) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// ─── Streamer ─────────────────────────────────────────────────────────────────

// Streamer serves PCM from memory.
type Streamer struct {
	mu sync.Mutex

	// PCM is the stream content returned for every URL not in Streams.
	PCM []byte

	// Streams overrides PCM per URL.
	Streams map[string][]byte

	// Block, when true, makes every stream block on Read until it is closed,
	// simulating a long track.
	Block bool

	// Err, when non-nil, is returned by Open.
	Err error

	// Opened records every URL passed to Open, in order.
	Opened []string

	closed int
}

// Open implements [ytdlp.Streamer].
func (s *Streamer) Open(_ context.Context, url string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Opened = append(s.Opened, url)
	if s.Err != nil {
		return nil, s.Err
	}
	data := s.PCM
	if d, ok := s.Streams[url]; ok {
		data = d
	}
	if s.Block {
		return &blockingStream{done: make(chan struct{}), onClose: s.markClosed}, nil
	}
	return &stream{Reader: bytes.NewReader(data), onClose: s.markClosed}, nil
}

// OpenedURLs returns a copy of the URLs opened so far.
func (s *Streamer) OpenedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Opened...)
}

// ClosedCount returns how many streams have been closed.
func (s *Streamer) ClosedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Streamer) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

type stream struct {
	*bytes.Reader
	once    sync.Once
	onClose func()
}

func (s *stream) Close() error {
	s.once.Do(s.onClose)
	return nil
}

type blockingStream struct {
	done    chan struct{}
	once    sync.Once
	onClose func()
}

func (s *blockingStream) Read([]byte) (int, error) {
	<-s.done
	return 0, io.EOF
}

func (s *blockingStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.onClose()
	})
	return nil
}
