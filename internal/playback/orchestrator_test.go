package playback_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/pascal/internal/history"
	"github.com/MrWong99/pascal/internal/observe"
	"github.com/MrWong99/pascal/internal/playback"
	"github.com/MrWong99/pascal/internal/resilience"
	"github.com/MrWong99/pascal/internal/sound"
	"github.com/MrWong99/pascal/internal/voice"
	"github.com/MrWong99/pascal/pkg/audio"
	"github.com/MrWong99/pascal/pkg/audio/mock"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

type fakeCatalog struct {
	cat *sound.Catalog
	err error
}

func (f fakeCatalog) Scan(context.Context) (*sound.Catalog, error) { return f.cat, f.err }

func catalogOf(names ...string) fakeCatalog {
	descs := make([]sound.Descriptor, 0, len(names))
	for _, n := range names {
		descs = append(descs, sound.Descriptor{Name: n, Extension: "mp3", Path: "audio/" + n + ".mp3"})
	}
	return fakeCatalog{cat: sound.NewCatalog(descs...)}
}

type fakeFetcher struct {
	mu    sync.Mutex
	title string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (audio.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return mock.NewSource(f.title), nil
}

func sources(d sound.Descriptor) audio.Source { return mock.NewSource(d.Name) }

type fixture struct {
	orch     *playback.Orchestrator
	mgr      *voice.Manager
	platform *mock.Platform
	fetcher  *fakeFetcher
	history  *history.MemoryStore
}

func newFixture(t *testing.T, catalog playback.Catalog, opts ...playback.Option) *fixture {
	t.Helper()
	f := &fixture{
		platform: &mock.Platform{},
		fetcher:  &fakeFetcher{title: "Never Gonna Give You Up"},
		history:  history.NewMemoryStore(),
	}
	f.mgr = voice.NewManager(f.platform)
	t.Cleanup(f.mgr.Close)
	opts = append([]playback.Option{
		playback.WithSourceFactory(sources),
		playback.WithHistory(f.history),
	}, opts...)
	f.orch = playback.New(catalog, f.mgr, f.fetcher, opts...)
	return f
}

func req(channelID, arg string) playback.Request {
	return playback.Request{GuildID: "g1", ChannelID: channelID, UserID: "u1", Argument: arg}
}

// ── IsRemote ─────────────────────────────────────────────────────────────────

func TestIsRemote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arg  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"http://example.com/clip.mp3", true},
		{"  https://example.com  ", true},
		{"airhorn", false},
		{"https://", false},
		{"ftp://example.com/a.mp3", false},
		{"file:///etc/passwd", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := playback.IsRemote(tc.arg); got != tc.want {
			t.Errorf("IsRemote(%q) = %v, want %v", tc.arg, got, tc.want)
		}
	}
}

// ── Play: files ──────────────────────────────────────────────────────────────

func TestPlay_KnownSoundJoinsAndPlays(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn", "bruh"))
	ack, err := f.orch.Play(context.Background(), req("C", "airhorn"))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if ack.Message() != "Tight." {
		t.Errorf("ack = %q, want Tight.", ack.Message())
	}

	calls := f.platform.Calls()
	if len(calls) != 1 || calls[0].GuildID != "g1" || calls[0].ChannelID != "C" {
		t.Fatalf("connect calls = %+v, want one to g1/C", calls)
	}
	plays := f.platform.Created()[0].Plays()
	if len(plays) != 1 || plays[0].Source.Name() != "airhorn" {
		t.Errorf("plays = %+v, want airhorn", plays)
	}
}

func TestPlay_UnknownSound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn"))
	_, err := f.orch.Play(context.Background(), req("", "unknown-sound"))

	var unknown *playback.UnknownSoundError
	if !errors.As(err, &unknown) {
		t.Fatalf("Play error = %v, want *UnknownSoundError", err)
	}
	reply := playback.Reply(err)
	if !strings.Contains(reply, "unknown-sound") || !strings.Contains(reply, "/list") {
		t.Errorf("reply = %q, want sound name and list hint", reply)
	}
	if len(f.platform.Calls()) != 0 {
		t.Error("joined voice for an unknown sound")
	}
}

func TestPlay_UnknownSoundSuggestion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn", "bruh"))
	_, err := f.orch.Play(context.Background(), req("C", "airhonr"))

	var unknown *playback.UnknownSoundError
	if !errors.As(err, &unknown) {
		t.Fatalf("Play error = %v, want *UnknownSoundError", err)
	}
	if unknown.Suggestion != "airhorn" {
		t.Errorf("Suggestion = %q, want airhorn", unknown.Suggestion)
	}
	if reply := playback.Reply(err); !strings.Contains(reply, "Did you mean **airhorn**?") {
		t.Errorf("reply = %q, want suggestion", reply)
	}
}

func TestPlay_NotInVoiceChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn"))
	_, err := f.orch.Play(context.Background(), req("", "airhorn"))
	if !errors.Is(err, playback.ErrNotInVoiceChannel) {
		t.Fatalf("Play error = %v, want ErrNotInVoiceChannel", err)
	}
	if got := playback.Reply(err); got != "You need to be in a voice channel for that." {
		t.Errorf("reply = %q", got)
	}
}

func TestPlay_FallsBackToCurrentChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn"))
	ctx := context.Background()
	if err := f.mgr.Join(ctx, "g1", "C"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if _, err := f.orch.Play(ctx, req("", "airhorn")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := len(f.platform.Calls()); got != 1 {
		t.Errorf("connect calls = %d, want 1", got)
	}
	if got := len(f.platform.Created()[0].Plays()); got != 1 {
		t.Errorf("plays = %d, want 1", got)
	}
}

func TestPlay_Busy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn", "bruh"))
	ctx := context.Background()
	if _, err := f.orch.Play(ctx, req("C", "airhorn")); err != nil {
		t.Fatalf("first Play: %v", err)
	}
	_, err := f.orch.Play(ctx, req("C", "bruh"))
	if !errors.Is(err, voice.ErrBusy) {
		t.Fatalf("second Play error = %v, want ErrBusy", err)
	}
	if got := playback.Reply(err); got != "Already playing something. Use `/stop` first." {
		t.Errorf("reply = %q", got)
	}
}

func TestPlay_BusyInOtherChannelDoesNotMove(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn", "bruh"), playback.WithQueueFiles(true))
	ctx := context.Background()
	if _, err := f.orch.Play(ctx, req("A", "airhorn")); err != nil {
		t.Fatalf("first Play: %v", err)
	}

	_, err := f.orch.Play(ctx, req("B", "bruh"))
	if !errors.Is(err, voice.ErrBusy) {
		t.Fatalf("second Play error = %v, want ErrBusy", err)
	}
	conn := f.platform.Created()[0]
	if moves := conn.Moves(); len(moves) != 0 {
		t.Errorf("Move calls = %v, want none", moves)
	}
	if ch, _ := f.mgr.CurrentChannel("g1"); ch != "A" {
		t.Errorf("CurrentChannel = %q, want A", ch)
	}
	if got := f.mgr.State("g1"); got != voice.StateBusy {
		t.Errorf("State = %v, want busy", got)
	}
}

func TestPlay_FallbackUsesTransportChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn"))
	ctx := context.Background()
	if err := f.mgr.Join(ctx, "g1", "C"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := f.platform.Created()[0]
	conn.SetChannel("D")

	if _, err := f.orch.Play(ctx, req("", "airhorn")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if moves := conn.Moves(); len(moves) != 0 {
		t.Errorf("Move calls = %v, want none", moves)
	}
	if got := len(conn.Plays()); got != 1 {
		t.Errorf("plays = %d, want 1", got)
	}
}

func TestPlay_QueueFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn", "bruh"), playback.WithQueueFiles(true))
	qc := &mock.QueueConnection{}
	f.platform.ConnectFunc = func(_, ch string) (audio.Connection, error) {
		qc.Channel = ch
		return qc, nil
	}
	ctx := context.Background()

	if _, err := f.orch.Play(ctx, req("C", "airhorn")); err != nil {
		t.Fatalf("first Play: %v", err)
	}
	ack, err := f.orch.Play(ctx, req("C", "bruh"))
	if err != nil {
		t.Fatalf("second Play: %v", err)
	}
	if !ack.Queued || ack.Message() != "Queued **bruh**." {
		t.Errorf("ack = %+v (%q), want queued bruh", ack, ack.Message())
	}
}

func TestPlay_QueueFilesDoesNotQueueLinks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn"), playback.WithQueueFiles(true))
	f.platform.ConnectFunc = func(_, ch string) (audio.Connection, error) {
		qc := &mock.QueueConnection{}
		qc.Channel = ch
		return qc, nil
	}
	ctx := context.Background()

	if _, err := f.orch.Play(ctx, req("C", "airhorn")); err != nil {
		t.Fatalf("first Play: %v", err)
	}
	if _, err := f.orch.Play(ctx, req("C", "https://example.com/v")); !errors.Is(err, voice.ErrBusy) {
		t.Errorf("link Play error = %v, want ErrBusy", err)
	}
}

func TestPlay_ScanError(t *testing.T) {
	t.Parallel()

	ioErr := &sound.IOError{Dir: "audio", Err: errors.New("permission denied")}
	f := newFixture(t, fakeCatalog{err: ioErr})
	_, err := f.orch.Play(context.Background(), req("C", "airhorn"))

	var got *sound.IOError
	if !errors.As(err, &got) {
		t.Fatalf("Play error = %v, want *sound.IOError", err)
	}
	if reply := playback.Reply(err); reply != "Couldn't read the sound library." {
		t.Errorf("reply = %q", reply)
	}
}

func TestPlay_ConnectionError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn"))
	f.platform.ConnectError = errors.New("missing permission")
	_, err := f.orch.Play(context.Background(), req("C", "airhorn"))

	var connErr *voice.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Play error = %v, want *voice.ConnectionError", err)
	}
	if reply := playback.Reply(err); reply != "Couldn't join the voice channel." {
		t.Errorf("reply = %q", reply)
	}
}

// ── Play: links ──────────────────────────────────────────────────────────────

func TestPlay_RemoteSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf())
	ctx := context.Background()
	ack, err := f.orch.Play(ctx, req("C", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if ack.Sound != "Never Gonna Give You Up" {
		t.Errorf("ack.Sound = %q", ack.Sound)
	}
	plays := f.platform.Created()[0].Plays()
	if len(plays) != 1 || plays[0].Source.Name() != "Never Gonna Give You Up" {
		t.Errorf("plays = %+v", plays)
	}

	// Links do not count towards the most played clips.
	top, _ := f.orch.Top(ctx, "g1", 5)
	if len(top) != 0 {
		t.Errorf("Top = %v, want empty", top)
	}
}

func TestPlay_RemoteFailureKeepsUpstreamMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf())
	f.fetcher.err = errors.New("ERROR: HTTP Error 404: Not Found")
	_, err := f.orch.Play(context.Background(), req("C", "https://example.com/gone"))

	var remote *playback.RemoteSourceError
	if !errors.As(err, &remote) {
		t.Fatalf("Play error = %v, want *RemoteSourceError", err)
	}
	if remote.URL != "https://example.com/gone" {
		t.Errorf("URL = %q", remote.URL)
	}
	if reply := playback.Reply(err); reply != "Couldn't stream that link: ERROR: HTTP Error 404: Not Found" {
		t.Errorf("reply = %q", reply)
	}
	if len(f.platform.Calls()) != 0 {
		t.Error("joined voice for a failed link")
	}
}

func TestPlay_RemoteBreakerOpens(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "ytdlp", MaxFailures: 2})
	f := newFixture(t, catalogOf(), playback.WithBreaker(cb))
	f.fetcher.err = errors.New("network unreachable")
	ctx := context.Background()

	for range 2 {
		_, _ = f.orch.Play(ctx, req("C", "https://example.com/a"))
	}
	_, err := f.orch.Play(ctx, req("C", "https://example.com/a"))
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Play error = %v, want ErrCircuitOpen", err)
	}
	var remote *playback.RemoteSourceError
	if !errors.As(err, &remote) {
		t.Errorf("open breaker error is not a RemoteSourceError: %v", err)
	}
	if f.fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", f.fetcher.calls)
	}
	if reply := playback.Reply(err); !strings.HasPrefix(reply, "Couldn't stream that link: ") {
		t.Errorf("reply = %q", reply)
	}
}

func TestPlay_LinksDisabled(t *testing.T) {
	t.Parallel()

	mgr := voice.NewManager(&mock.Platform{})
	orch := playback.New(catalogOf(), mgr, nil)
	_, err := orch.Play(context.Background(), req("C", "https://example.com/a"))
	var remote *playback.RemoteSourceError
	if !errors.As(err, &remote) {
		t.Errorf("Play error = %v, want *RemoteSourceError", err)
	}
}

// ── Stop / List / Autocomplete / Top ─────────────────────────────────────────

func TestStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn"))
	ctx := context.Background()
	if _, err := f.orch.Stop(ctx, "g1"); err != nil {
		t.Fatalf("Stop without session: %v", err)
	}
	if _, err := f.orch.Play(ctx, req("C", "airhorn")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	ack, err := f.orch.Stop(ctx, "g1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ack.Message() != "Tight." {
		t.Errorf("ack = %q", ack.Message())
	}
	if got := f.mgr.State("g1"); got != voice.StateIdle {
		t.Errorf("State = %v, want idle", got)
	}
}

func TestListSounds_ScanOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("zebra", "airhorn", "bruh"))
	names, err := f.orch.ListSounds(context.Background())
	if err != nil {
		t.Fatalf("ListSounds: %v", err)
	}
	if strings.Join(names, ",") != "zebra,airhorn,bruh" {
		t.Errorf("ListSounds = %v", names)
	}
}

func TestAutocomplete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn", "bruh", "hair", "sad-trombone"))
	got, err := f.orch.Autocomplete(context.Background(), "air")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(got) != 2 || got[0] != "hair" || got[1] != "airhorn" {
		t.Errorf("Autocomplete(air) = %v, want [hair airhorn]", got)
	}
}

func TestAutocomplete_StrictLimit(t *testing.T) {
	t.Parallel()

	names := make([]string, 15)
	for i := range names {
		names[i] = fmt.Sprintf("clip%02d", i)
	}

	loose := newFixture(t, catalogOf(names...))
	got, _ := loose.orch.Autocomplete(context.Background(), "")
	if len(got) != 15 {
		t.Errorf("default Autocomplete(\"\") = %d results, want the whole tied group (15)", len(got))
	}

	strict := newFixture(t, catalogOf(names...), playback.WithStrictAutocomplete(true))
	got, _ = strict.orch.Autocomplete(context.Background(), "")
	if len(got) != 10 {
		t.Errorf("strict Autocomplete(\"\") = %d results, want 10", len(got))
	}
}

func TestTop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, catalogOf("airhorn", "bruh"))
	ctx := context.Background()
	for _, name := range []string{"bruh", "airhorn", "bruh"} {
		if _, err := f.orch.Play(ctx, req("C", name)); err != nil {
			t.Fatalf("Play %s: %v", name, err)
		}
		if _, err := f.orch.Stop(ctx, "g1"); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}

	top, err := f.orch.Top(ctx, "g1", 1)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 1 || top[0].Sound != "bruh" || top[0].Plays != 2 {
		t.Errorf("Top = %v, want bruh x2", top)
	}
}

func TestTop_WithoutHistory(t *testing.T) {
	t.Parallel()

	orch := playback.New(catalogOf(), voice.NewManager(&mock.Platform{}), nil)
	top, err := orch.Top(context.Background(), "g1", 5)
	if err != nil || len(top) != 0 {
		t.Errorf("Top = (%v, %v), want empty", top, err)
	}
}

// ── Metrics ──────────────────────────────────────────────────────────────────

func TestPlay_RecordsStatus(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := newFixture(t, catalogOf("airhorn"), playback.WithMetrics(met))
	ctx := context.Background()
	_, _ = f.orch.Play(ctx, req("C", "airhorn"))
	_, _ = f.orch.Play(ctx, req("C", "airhorn"))
	_, _ = f.orch.Play(ctx, req("C", "nope"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "pascal.playback.requests" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				counts[status.AsString()] += dp.Value
			}
		}
	}
	if counts["ok"] != 1 || counts["busy"] != 1 || counts["unknown"] != 1 {
		t.Errorf("status counts = %v, want ok=1 busy=1 unknown=1", counts)
	}
}

// ── Reply ────────────────────────────────────────────────────────────────────

func TestReply_Fallback(t *testing.T) {
	t.Parallel()

	if got := playback.Reply(errors.New("boom")); got != "Something went wrong." {
		t.Errorf("Reply = %q", got)
	}
	if playback.Expected(errors.New("boom")) {
		t.Error("unexpected error reported as expected")
	}
	if !playback.Expected(fmt.Errorf("wrapped: %w", voice.ErrBusy)) {
		t.Error("ErrBusy not reported as expected")
	}
}
