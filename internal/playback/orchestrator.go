// Package playback resolves play requests into audio sources and hands them
// to the voice session manager. It is the surface the command layer talks to.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/pascal/internal/history"
	"github.com/MrWong99/pascal/internal/observe"
	"github.com/MrWong99/pascal/internal/resilience"
	"github.com/MrWong99/pascal/internal/sound"
	"github.com/MrWong99/pascal/internal/sound/fuzzy"
	"github.com/MrWong99/pascal/internal/voice"
	"github.com/MrWong99/pascal/pkg/audio"
	"github.com/MrWong99/pascal/pkg/audio/ffmpeg"
)

// Source kinds used in metrics and history.
const (
	KindFile   = "file"
	KindRemote = "remote"
)

// Catalog yields the current clip catalog. [*sound.Scanner] implements it.
type Catalog interface {
	Scan(ctx context.Context) (*sound.Catalog, error)
}

// Voice is the subset of [*voice.Manager] the orchestrator drives.
type Voice interface {
	JoinAndPlay(ctx context.Context, guildID, channelID string, src audio.Source, opts voice.PlayOptions) (voice.PlayResult, error)
	Stop(ctx context.Context, guildID string) error
	CurrentChannel(guildID string) (string, bool)
}

// Fetcher resolves a link into a playable source.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (audio.Source, error)
}

// FetcherFunc adapts a function to [Fetcher].
type FetcherFunc func(ctx context.Context, url string) (audio.Source, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (audio.Source, error) { return f(ctx, url) }

// SourceFactory turns a catalog entry into a playable source.
type SourceFactory func(d sound.Descriptor) audio.Source

// Request is one /play invocation.
type Request struct {
	GuildID string

	// ChannelID is the caller's voice channel, empty when unknown.
	ChannelID string

	UserID   string
	Argument string
}

// Ack acknowledges an accepted request.
type Ack struct {
	// Sound is the clip name or remote title. Empty for stop.
	Sound  string
	Queued bool
}

// Message returns the acknowledgement shown to the user.
func (a Ack) Message() string {
	if a.Queued {
		return fmt.Sprintf("Queued **%s**.", a.Sound)
	}
	return "Tight."
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSourceFactory replaces the ffmpeg file decoder.
func WithSourceFactory(f SourceFactory) Option {
	return func(o *Orchestrator) { o.sources = f }
}

// WithHistory records every accepted play in s.
func WithHistory(s history.Store) Option {
	return func(o *Orchestrator) { o.history = s }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithBreaker guards the fetcher with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *Orchestrator) { o.breaker = cb }
}

// WithFetchTimeout bounds each remote fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.fetchTimeout = d }
}

// WithQueueFiles lets catalog clips queue behind the current playback instead
// of being rejected as busy, when the transport supports queueing.
func WithQueueFiles(enabled bool) Option {
	return func(o *Orchestrator) { o.queueFiles = enabled }
}

// WithStrictAutocomplete truncates autocomplete results to exactly
// [fuzzy.MaxResults].
func WithStrictAutocomplete(enabled bool) Option {
	return func(o *Orchestrator) { o.strict = enabled }
}

// Orchestrator implements the play, stop, list and autocomplete operations.
//
// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	catalog      Catalog
	voice        Voice
	fetcher      Fetcher
	sources      SourceFactory
	history      history.Store
	metrics      *observe.Metrics
	breaker      *resilience.CircuitBreaker
	fetchTimeout time.Duration
	queueFiles   bool
	strict       bool
}

// New creates an [Orchestrator]. fetcher may be nil, which disables links.
func New(catalog Catalog, v Voice, fetcher Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog: catalog,
		voice:   v,
		fetcher: fetcher,
		sources: func(d sound.Descriptor) audio.Source {
			return ffmpeg.NewFile("ffmpeg", d.Name, d.Path)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsRemote reports whether arg is an http or https link.
func IsRemote(arg string) bool {
	u, err := url.Parse(strings.TrimSpace(arg))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Play resolves req.Argument and starts it in the caller's channel, or the
// channel the bot already sits in.
func (o *Orchestrator) Play(ctx context.Context, req Request) (Ack, error) {
	ctx, span := observe.StartSpan(ctx, "playback.play")
	defer span.End()

	kind := KindFile
	if IsRemote(req.Argument) {
		kind = KindRemote
	}
	span.SetAttributes(
		attribute.String("guild.id", req.GuildID),
		attribute.String("playback.kind", kind),
	)

	ack, err := o.play(ctx, req, kind)
	if o.metrics != nil {
		o.metrics.RecordPlayback(ctx, kind, status(ack, err))
	}
	if err != nil {
		span.RecordError(err)
		return Ack{}, err
	}

	if o.history != nil {
		p := history.Play{GuildID: req.GuildID, UserID: req.UserID, Sound: ack.Sound, Remote: kind == KindRemote}
		if herr := o.history.Record(ctx, p); herr != nil {
			observe.Logger(ctx).Warn("playback: recording history", "guild_id", req.GuildID, "err", herr)
		}
	}
	return ack, nil
}

func (o *Orchestrator) play(ctx context.Context, req Request, kind string) (Ack, error) {
	arg := strings.TrimSpace(req.Argument)

	var (
		src  audio.Source
		opts = voice.PlayOptions{Kind: kind}
	)
	if kind == KindFile {
		d, err := o.resolve(ctx, arg)
		if err != nil {
			return Ack{}, err
		}
		src = o.sources(d)
		opts.Enqueue = o.queueFiles
	}

	channelID := req.ChannelID
	if channelID == "" {
		cur, ok := o.voice.CurrentChannel(req.GuildID)
		if !ok {
			return Ack{}, ErrNotInVoiceChannel
		}
		channelID = cur
	}

	if kind == KindRemote {
		s, err := o.fetch(ctx, arg)
		if err != nil {
			return Ack{}, err
		}
		src = s
	}

	res, err := o.voice.JoinAndPlay(ctx, req.GuildID, channelID, src, opts)
	if err != nil {
		return Ack{}, err
	}

	slog.Debug("playback: started", "guild_id", req.GuildID, "channel_id", channelID, "sound", src.Name(), "kind", kind, "queued", res.Queued)
	return Ack{Sound: src.Name(), Queued: res.Queued}, nil
}

// resolve looks name up in a fresh catalog scan.
func (o *Orchestrator) resolve(ctx context.Context, name string) (sound.Descriptor, error) {
	cat, err := o.catalog.Scan(ctx)
	if err != nil {
		return sound.Descriptor{}, err
	}
	d, ok := cat.Lookup(name)
	if !ok {
		suggestion, _ := fuzzy.Closest(name, cat.Names())
		return sound.Descriptor{}, &UnknownSoundError{Name: name, Suggestion: suggestion}
	}
	return d, nil
}

// fetch resolves link through the breaker.
func (o *Orchestrator) fetch(ctx context.Context, link string) (audio.Source, error) {
	if o.fetcher == nil {
		return nil, &RemoteSourceError{URL: link, Err: errors.New("link playback is disabled")}
	}

	var src audio.Source
	call := func() error {
		fctx := ctx
		if o.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
			defer cancel()
		}
		s, err := o.fetcher.Fetch(fctx, link)
		src = s
		return err
	}

	var err error
	if o.breaker != nil {
		err = o.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, &RemoteSourceError{URL: link, Err: err}
	}
	return src, nil
}

// Stop stops playback in guildID.
func (o *Orchestrator) Stop(ctx context.Context, guildID string) (Ack, error) {
	if err := o.voice.Stop(ctx, guildID); err != nil {
		return Ack{}, err
	}
	return Ack{}, nil
}

// ListSounds returns every clip name in scan order.
func (o *Orchestrator) ListSounds(ctx context.Context) ([]string, error) {
	cat, err := o.catalog.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Names(), nil
}

// Autocomplete ranks the clip names against query.
func (o *Orchestrator) Autocomplete(ctx context.Context, query string) ([]string, error) {
	ctx, span := observe.StartSpan(ctx, "playback.autocomplete")
	defer span.End()

	cat, err := o.catalog.Scan(ctx)
	if err != nil {
		return nil, err
	}
	var opts []fuzzy.Option
	if o.strict {
		opts = append(opts, fuzzy.WithStrictLimit())
	}
	return fuzzy.Rank(query, cat.Names(), opts...), nil
}

// Top returns the n most played clips in guildID. Without a history store
// it returns nothing.
func (o *Orchestrator) Top(ctx context.Context, guildID string, n int) ([]history.Count, error) {
	if o.history == nil {
		return nil, nil
	}
	return o.history.Top(ctx, guildID, n)
}

// status maps a play result onto the metrics status attribute.
func status(ack Ack, err error) string {
	var (
		unknown *UnknownSoundError
		remote  *RemoteSourceError
	)
	switch {
	case err == nil && ack.Queued:
		return "queued"
	case err == nil:
		return "ok"
	case errors.Is(err, voice.ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotInVoiceChannel):
		return "not_in_voice"
	case errors.As(err, &unknown):
		return "unknown"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "error"
	}
}
