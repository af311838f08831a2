package player_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/dmbot/internal/observe"
	"github.com/MrWong99/dmbot/internal/player"
	ytmock "github.com/MrWong99/dmbot/internal/ytdlp/mock"
	"github.com/MrWong99/dmbot/pkg/audio"
	audiomock "github.com/MrWong99/dmbot/pkg/audio/mock"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newManager(t *testing.T, streamer *ytmock.Streamer, opts ...player.Option) (*player.Manager, *audiomock.Platform) {
	t.Helper()
	platform := &audiomock.Platform{}
	m := player.NewManager(platform, streamer, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m, platform
}

func track(url string) player.Track {
	return player.Track{URL: url, Title: "title of " + url}
}

// ─── Enqueue ──────────────────────────────────────────────────────────────────

func TestEnqueue_PlaysWholeTrackThenLeavesWhenIdle(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, audio.FrameBytes*2+audio.FrameBytes/2)
	streamer := &ytmock.Streamer{PCM: pcm}
	m, platform := newManager(t, streamer, player.WithIdleTimeout(30*time.Millisecond))

	got, err := m.Enqueue(context.Background(), "g1", "voice-1", track("https://youtu.be/a"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got.Position != 1 || got.Title != "title of https://youtu.be/a" {
		t.Errorf("Enqueue = %+v, want position 1 with the given title", got)
	}
	if calls := platform.ConnectCalls; len(calls) != 1 || calls[0] != (audiomock.ConnectCall{GuildID: "g1", ChannelID: "voice-1"}) {
		t.Fatalf("ConnectCalls = %v", calls)
	}

	conn := platform.Connections()[0]
	waitFor(t, "all PCM delivered", func() bool { return conn.BytesReceived() == len(pcm) })
	if n := conn.FramesReceived(); n != 3 {
		t.Errorf("FramesReceived = %d, want 3", n)
	}
	waitFor(t, "idle disconnect", conn.Disconnected)
	waitFor(t, "guild released", func() bool { return !m.Connected("g1") })
	if n := streamer.ClosedCount(); n != 1 {
		t.Errorf("ClosedCount = %d, want 1", n)
	}
}

func TestEnqueue_PositionsCountPlayingTrack(t *testing.T) {
	t.Parallel()

	m, platform := newManager(t, &ytmock.Streamer{Block: true})
	ctx := context.Background()

	for i, url := range []string{"a", "b", "c"} {
		got, err := m.Enqueue(ctx, "g1", "voice-1", track(url))
		if err != nil {
			t.Fatalf("Enqueue(%s): %v", url, err)
		}
		if got.Position != i+1 {
			t.Errorf("Enqueue(%s).Position = %d, want %d", url, got.Position, i+1)
		}
	}
	if n := m.QueueLen("g1"); n != 3 {
		t.Errorf("QueueLen = %d, want 3", n)
	}
	if n := platform.ConnectCount(); n != 1 {
		t.Errorf("ConnectCount = %d, want 1 for one guild", n)
	}
}

func TestEnqueue_GuildsAreIndependent(t *testing.T) {
	t.Parallel()

	m, platform := newManager(t, &ytmock.Streamer{Block: true})
	ctx := context.Background()

	for _, g := range []string{"g1", "g2"} {
		got, err := m.Enqueue(ctx, g, "voice-"+g, track("a"))
		if err != nil {
			t.Fatalf("Enqueue(%s): %v", g, err)
		}
		if got.Position != 1 {
			t.Errorf("Enqueue(%s).Position = %d, want 1", g, got.Position)
		}
	}
	if n := platform.ConnectCount(); n != 2 {
		t.Errorf("ConnectCount = %d, want 2", n)
	}
}

func TestEnqueue_LooksUpMissingTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		titles *ytmock.TitleResolver
		want   string
	}{
		{
			name:   "resolved",
			titles: &ytmock.TitleResolver{Titles: map[string]string{"https://youtu.be/x": "Everlong"}},
			want:   "Everlong",
		},
		{
			name:   "lookup failure falls back to url",
			titles: &ytmock.TitleResolver{Err: errors.New("yt-dlp failed")},
			want:   "https://youtu.be/x",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newManager(t, &ytmock.Streamer{Block: true}, player.WithTitleResolver(tc.titles))
			got, err := m.Enqueue(context.Background(), "g1", "voice-1", player.Track{URL: "https://youtu.be/x"})
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			if got.Title != tc.want {
				t.Errorf("Title = %q, want %q", got.Title, tc.want)
			}
			if n := tc.titles.CallCount(); n != 1 {
				t.Errorf("title lookups = %d, want 1", n)
			}
		})
	}
}

func TestEnqueue_KnownTitleSkipsLookup(t *testing.T) {
	t.Parallel()

	titles := &ytmock.TitleResolver{}
	m, _ := newManager(t, &ytmock.Streamer{Block: true}, player.WithTitleResolver(titles))
	if _, err := m.Enqueue(context.Background(), "g1", "voice-1", track("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if n := titles.CallCount(); n != 0 {
		t.Errorf("title lookups = %d, want 0", n)
	}
}

func TestEnqueue_MovesToCallersChannel(t *testing.T) {
	t.Parallel()

	m, platform := newManager(t, &ytmock.Streamer{Block: true})
	ctx := context.Background()

	if _, err := m.Enqueue(ctx, "g1", "voice-1", track("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Enqueue(ctx, "g1", "voice-2", track("b")); err != nil {
		t.Fatal(err)
	}
	conn := platform.Connections()[0]
	if got := conn.ChannelID(); got != "voice-2" {
		t.Errorf("ChannelID = %q, want voice-2", got)
	}
	if platform.ConnectCount() != 1 {
		t.Error("moving should reuse the connection")
	}
}

func TestEnqueue_FailedMoveKeepsQueueing(t *testing.T) {
	t.Parallel()

	m, platform := newManager(t, &ytmock.Streamer{Block: true})
	ctx := context.Background()

	if _, err := m.Enqueue(ctx, "g1", "voice-1", track("a")); err != nil {
		t.Fatal(err)
	}
	platform.Connections()[0].MoveError = errors.New("missing permission")

	got, err := m.Enqueue(ctx, "g1", "voice-2", track("b"))
	if err != nil {
		t.Fatalf("Enqueue after failed move: %v", err)
	}
	if got.Position != 2 {
		t.Errorf("Position = %d, want 2", got.Position)
	}
}

func TestEnqueue_ConnectFailure(t *testing.T) {
	t.Parallel()

	m, platform := newManager(t, &ytmock.Streamer{Block: true})
	platform.ConnectError = errors.New("voice gateway timeout")

	_, err := m.Enqueue(context.Background(), "g1", "voice-1", track("a"))
	if !errors.Is(err, player.ErrNotConnected) {
		t.Fatalf("Enqueue error = %v, want ErrNotConnected", err)
	}
	if m.Connected("g1") || m.QueueLen("g1") != 0 {
		t.Error("failed connect should leave no state behind")
	}

	platform.ConnectError = nil
	if _, err := m.Enqueue(context.Background(), "g1", "voice-1", track("a")); err != nil {
		t.Fatalf("retry Enqueue: %v", err)
	}
	if n := platform.ConnectCount(); n != 2 {
		t.Errorf("ConnectCount = %d, want 2", n)
	}
}

func TestEnqueue_OpenFailureMovesOn(t *testing.T) {
	t.Parallel()

	streamer := &ytmock.Streamer{Err: errors.New("yt-dlp failed")}
	m, _ := newManager(t, streamer)
	ctx := context.Background()

	for _, url := range []string{"a", "b"} {
		if _, err := m.Enqueue(ctx, "g1", "voice-1", track(url)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "both tracks attempted", func() bool { return len(streamer.OpenedURLs()) == 2 })
	waitFor(t, "queue drained", func() bool { return m.QueueLen("g1") == 0 })
	if got := streamer.OpenedURLs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("OpenedURLs = %v, want [a b]", got)
	}
}

// ─── Skip / Stop ──────────────────────────────────────────────────────────────

func TestSkip(t *testing.T) {
	t.Parallel()

	streamer := &ytmock.Streamer{Block: true}
	m, platform := newManager(t, streamer)
	ctx := context.Background()

	for _, url := range []string{"a", "b"} {
		if _, err := m.Enqueue(ctx, "g1", "voice-1", track(url)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "first track playing", func() bool { return len(streamer.OpenedURLs()) == 1 })

	remaining, err := m.Skip("g1")
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}
	waitFor(t, "second track playing", func() bool { return len(streamer.OpenedURLs()) == 2 })
	if n := platform.Connections()[0].CallCountFlush; n != 1 {
		t.Errorf("Flush calls = %d, want 1", n)
	}

	remaining, err = m.Skip("g1")
	if err != nil || remaining != 0 {
		t.Errorf("Skip last = (%d, %v), want (0, nil)", remaining, err)
	}
	waitFor(t, "queue drained", func() bool { return m.QueueLen("g1") == 0 })
	if _, err := m.Skip("g1"); !errors.Is(err, player.ErrNothingPlaying) {
		t.Errorf("Skip on drained queue = %v, want ErrNothingPlaying", err)
	}
}

func TestSkip_UnknownGuild(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &ytmock.Streamer{})
	if _, err := m.Skip("nowhere"); !errors.Is(err, player.ErrNothingPlaying) {
		t.Errorf("Skip = %v, want ErrNothingPlaying", err)
	}
}

func TestStop(t *testing.T) {
	t.Parallel()

	streamer := &ytmock.Streamer{Block: true}
	m, platform := newManager(t, streamer)
	ctx := context.Background()

	for _, url := range []string{"a", "b", "c"} {
		if _, err := m.Enqueue(ctx, "g1", "voice-1", track(url)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "first track playing", func() bool { return len(streamer.OpenedURLs()) == 1 })

	if err := m.Stop("g1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitFor(t, "queue cleared", func() bool { return m.QueueLen("g1") == 0 })
	if got := streamer.OpenedURLs(); len(got) != 1 {
		t.Errorf("OpenedURLs = %v, want only the first track", got)
	}
	if !m.Connected("g1") {
		t.Error("Stop should keep the voice connection")
	}
	if platform.Connections()[0].Disconnected() {
		t.Error("Stop should not disconnect")
	}
}

func TestStop_UnknownGuild(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &ytmock.Streamer{})
	if err := m.Stop("nowhere"); !errors.Is(err, player.ErrNotConnected) {
		t.Errorf("Stop = %v, want ErrNotConnected", err)
	}
}

// ─── Close ────────────────────────────────────────────────────────────────────

func TestClose(t *testing.T) {
	t.Parallel()

	streamer := &ytmock.Streamer{Block: true}
	platform := &audiomock.Platform{}
	m := player.NewManager(platform, streamer)

	if _, err := m.Enqueue(context.Background(), "g1", "voice-1", track("a")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "track playing", func() bool { return len(streamer.OpenedURLs()) == 1 })

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !platform.Connections()[0].Disconnected() {
		t.Error("Close should disconnect")
	}
	if n := streamer.ClosedCount(); n != 1 {
		t.Errorf("ClosedCount = %d, want 1", n)
	}
	if _, err := m.Enqueue(context.Background(), "g1", "voice-1", track("b")); !errors.Is(err, player.ErrClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// ─── Metrics ──────────────────────────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m, _ := newManager(t, &ytmock.Streamer{Block: true}, player.WithMetrics(metrics))
	for _, url := range []string{"a", "b"} {
		if _, err := m.Enqueue(context.Background(), "g1", "voice-1", track(url)); err != nil {
			t.Fatal(err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := map[string]int64{
		"dmbot.tracks.enqueued":           2,
		"dmbot.active_voice_connections": 1,
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			w, ok := want[met.Name]
			if !ok {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("%s: unexpected data %T", met.Name, met.Data)
			}
			if got := sum.DataPoints[0].Value; got != w {
				t.Errorf("%s = %d, want %d", met.Name, got, w)
			}
			delete(want, met.Name)
		}
	}
	if len(want) != 0 {
		t.Errorf("metrics not recorded: %v", want)
	}
}
