// Package intro plays a user's configured clip when they join a monitored
// voice channel.
//
// Every presence transition runs through a fixed guard chain (qualify,
// lookup, channel, cooldown, resolve, act). The first guard that rejects the
// transition decides the [Outcome]. The cooldown guard reserves the user's
// token up front and hands it back unless the intro actually starts.
package intro

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/MrWong99/pascal/internal/observe"
	"github.com/MrWong99/pascal/internal/sound"
	"github.com/MrWong99/pascal/internal/voice"
	"github.com/MrWong99/pascal/pkg/audio"
)

// Transition is one observed change of a user's voice channel. Empty
// channel IDs mean "not in voice".
type Transition struct {
	GuildID           string
	UserID            string
	PreviousChannelID string
	NewChannelID      string
}

// Catalog yields the current clip catalog. [*sound.Scanner] implements it.
type Catalog interface {
	Scan(ctx context.Context) (*sound.Catalog, error)
}

// Voice is the subset of [*voice.Manager] the trigger drives.
type Voice interface {
	JoinAndPlay(ctx context.Context, guildID, channelID string, src audio.Source, opts voice.PlayOptions) (voice.PlayResult, error)
}

// SourceFactory turns a catalog entry into a playable source.
type SourceFactory func(d sound.Descriptor) audio.Source

// Option configures a [Trigger].
type Option func(*Trigger)

// WithMetrics records outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Trigger) { t.metrics = m }
}

// withClock replaces time.Now for cooldown bookkeeping.
func withClock(now func() time.Time) Option {
	return func(t *Trigger) { t.now = now }
}

// Trigger decides whether a presence transition plays an intro and starts it.
//
// Trigger is safe for concurrent use.
type Trigger struct {
	rules   atomic.Pointer[RuleSet]
	catalog Catalog
	voice   Voice
	sources SourceFactory
	metrics *observe.Metrics
	now     func() time.Time

	limiters sync.Map // user ID → *userLimiter
}

// userLimiter is a token bucket tied to the cooldown it was built for.
type userLimiter struct {
	cooldown time.Duration
	lim      *rate.Limiter
}

// NewTrigger creates a [Trigger] starting with rules.
func NewTrigger(rules *RuleSet, catalog Catalog, v Voice, sources SourceFactory, opts ...Option) *Trigger {
	t := &Trigger{
		catalog: catalog,
		voice:   v,
		sources: sources,
		now:     time.Now,
	}
	if rules == nil {
		rules = NewRuleSet(nil, nil)
	}
	t.rules.Store(rules)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetRules atomically replaces the rule snapshot. Transitions already being
// handled keep the snapshot they started with.
func (t *Trigger) SetRules(rules *RuleSet) {
	if rules == nil {
		rules = NewRuleSet(nil, nil)
	}
	t.rules.Store(rules)
}

// Rules returns the current rule snapshot.
func (t *Trigger) Rules() *RuleSet { return t.rules.Load() }

// OnTransition runs the guard chain for tr and, if every guard passes, joins
// the channel and starts the intro. A busy session skips the intro.
func (t *Trigger) OnTransition(ctx context.Context, tr Transition) Outcome {
	rules := t.rules.Load()

	if tr.PreviousChannelID != "" || tr.NewChannelID == "" {
		return Skipped(ReasonNotAJoin)
	}
	if tr.GuildID == "" {
		return Skipped(ReasonNoGuild)
	}

	clip, ok := rules.Clip(tr.UserID)
	if !ok {
		return Skipped(ReasonNoRule)
	}
	if !rules.Monitors(tr.NewChannelID) {
		return Skipped(ReasonChannelNotMonitored)
	}

	var cooldown *rate.Reservation
	if cd := rules.Cooldown(); cd > 0 {
		now := t.now()
		r := t.limiter(tr.UserID, cd).ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			return Skipped(ReasonCooldown)
		}
		cooldown = r
	}

	out := t.act(ctx, tr, clip)
	if cooldown != nil && out.Status != StatusTriggered {
		cooldown.CancelAt(t.now())
	}
	return out
}

// act resolves clip and starts it in the user's channel. A session that is
// busy anywhere in the guild is left untouched.
func (t *Trigger) act(ctx context.Context, tr Transition, clip string) Outcome {
	cat, err := t.catalog.Scan(ctx)
	if err != nil {
		return Failed(err)
	}
	desc, ok := cat.Lookup(clip)
	if !ok {
		return Failed(&MissingClipError{UserID: tr.UserID, Clip: clip})
	}

	_, err = t.voice.JoinAndPlay(ctx, tr.GuildID, tr.NewChannelID, t.sources(desc), voice.PlayOptions{Kind: "intro"})
	switch {
	case errors.Is(err, voice.ErrBusy):
		return Skipped(ReasonBusy)
	case err != nil:
		return Failed(err)
	}
	return Triggered()
}

// limiter returns the bucket for userID, replacing it when the cooldown
// changed since it was created.
func (t *Trigger) limiter(userID string, cooldown time.Duration) *rate.Limiter {
	for {
		fresh := &userLimiter{cooldown: cooldown, lim: rate.NewLimiter(rate.Every(cooldown), 1)}
		v, loaded := t.limiters.LoadOrStore(userID, fresh)
		if !loaded {
			return fresh.lim
		}
		ul := v.(*userLimiter)
		if ul.cooldown == cooldown {
			return ul.lim
		}
		if t.limiters.CompareAndSwap(userID, ul, fresh) {
			return fresh.lim
		}
	}
}

// Handle processes tr and only logs the outcome. It never fails.
func (t *Trigger) Handle(ctx context.Context, tr Transition) {
	ctx, span := observe.StartSpan(ctx, "intro.handle")
	defer span.End()

	out := t.OnTransition(ctx, tr)
	span.SetAttributes(
		attribute.String("intro.status", string(out.Status)),
		attribute.String("intro.reason", string(out.Reason)),
	)

	log := observe.Logger(ctx)
	attrs := []any{
		"guild_id", tr.GuildID,
		"user_id", tr.UserID,
		"channel_id", tr.NewChannelID,
		"status", out.Status,
	}
	switch out.Status {
	case StatusFailed:
		log.Warn("intro: failed", append(attrs, "err", out.Err)...)
	case StatusSkipped:
		log.Debug("intro: skipped", append(attrs, "reason", out.Reason)...)
	default:
		log.Debug("intro: triggered", attrs...)
	}

	if t.metrics != nil {
		t.metrics.RecordIntro(ctx, string(out.Status), string(out.Reason))
	}
}
