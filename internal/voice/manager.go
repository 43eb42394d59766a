// Package voice owns the voice connection of every guild and arbitrates
// playback on it.
//
// Each guild moves through
//
//	Disconnected → Connecting → Idle ⇄ Busy → Disconnected
//
// and at most one source plays per guild at a time. A process-wide mutex
// guards only the guild table; every guild has its own mutex, so slow
// transport calls in one guild never hold up another.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/pascal/internal/observe"
	"github.com/MrWong99/pascal/pkg/audio"
)

// State is the lifecycle state of one guild's session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StateBusy
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// PlayOptions tunes a single [Manager.Play] call.
type PlayOptions struct {
	// Enqueue queues the source behind the current playback instead of
	// returning [ErrBusy], if the connection implements [audio.Queuer].
	Enqueue bool

	// Kind labels the playback in metrics ("file" or "remote").
	Kind string
}

// PlayResult describes an accepted play request.
type PlayResult struct {
	// Queued is true when the source waits behind the current playback.
	Queued bool
}

// Option configures a [Manager].
type Option func(*Manager)

// WithJoinTimeout bounds [Manager.Join] in addition to the caller's context.
func WithJoinTimeout(d time.Duration) Option {
	return func(m *Manager) { m.joinTimeout = d }
}

// WithPlayTimeout bounds the hand-off in [Manager.Play] in addition to the
// caller's context.
func WithPlayTimeout(d time.Duration) Option {
	return func(m *Manager) { m.playTimeout = d }
}

// WithMetrics records session and playback metrics on met.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// Manager owns the per-guild voice sessions. It is the only component that
// touches [audio.Connection] state.
//
// Manager is safe for concurrent use.
type Manager struct {
	platform    audio.Platform
	joinTimeout time.Duration
	playTimeout time.Duration
	metrics     *observe.Metrics

	mu     sync.Mutex
	guilds map[string]*guildSession
}

// guildSession is the mutable state of one guild, guarded by its own mutex.
type guildSession struct {
	mu sync.Mutex

	guildID string
	conn    audio.Connection
	state   State

	// pending counts accepted playbacks (current plus queued) that have not
	// completed yet.
	pending int

	// gen increments on every stop and teardown so completions of older
	// playbacks are ignored.
	gen uint64
}

// NewManager creates a [Manager] on top of platform.
func NewManager(platform audio.Platform, opts ...Option) *Manager {
	m := &Manager{
		platform: platform,
		guilds:   make(map[string]*guildSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// session returns the state holder of guildID, creating it on first use.
func (m *Manager) session(guildID string) *guildSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	gs, ok := m.guilds[guildID]
	if !ok {
		gs = &guildSession{guildID: guildID}
		m.guilds[guildID] = gs
	}
	return gs
}

// lookup returns the state holder of guildID without creating one.
func (m *Manager) lookup(guildID string) (*guildSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gs, ok := m.guilds[guildID]
	return gs, ok
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Join connects the guild to channelID. Joining the channel the connection
// currently sits in is a no-op; joining another channel moves the existing
// connection without interrupting playback. Transport failures are returned
// as [*ConnectionError]. On timeout the guild ends up disconnected.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) error {
	gs := m.session(guildID)
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return m.joinLocked(ctx, gs, channelID)
}

// Play hands src to the guild's connection. It returns [ErrNoSession] when
// the guild is not connected and [ErrBusy] while another source is playing,
// unless opts.Enqueue is set and the connection can queue. The session
// returns to idle once the transport reports completion.
func (m *Manager) Play(ctx context.Context, guildID string, src audio.Source, opts PlayOptions) (PlayResult, error) {
	gs, ok := m.lookup(guildID)
	if !ok {
		return PlayResult{}, ErrNoSession
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return m.playLocked(ctx, gs, src, opts)
}

// JoinAndPlay joins channelID and plays src while holding the guild lock
// for both steps. A busy session is never moved: if it sits in another
// channel, JoinAndPlay returns [ErrBusy] and leaves the connection where it
// is. In the same channel the [Manager.Play] rules apply.
func (m *Manager) JoinAndPlay(ctx context.Context, guildID, channelID string, src audio.Source, opts PlayOptions) (PlayResult, error) {
	gs := m.session(guildID)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.conn != nil && gs.pending > 0 && gs.conn.ChannelID() != channelID {
		return PlayResult{}, ErrBusy
	}
	if err := m.joinLocked(ctx, gs, channelID); err != nil {
		return PlayResult{}, err
	}
	return m.playLocked(ctx, gs, src, opts)
}

// joinLocked implements [Manager.Join]. gs.mu must be held.
func (m *Manager) joinLocked(ctx context.Context, gs *guildSession, channelID string) error {
	ctx, cancel := withTimeout(ctx, m.joinTimeout)
	defer cancel()

	guildID := gs.guildID
	if gs.conn != nil {
		// The transport tracks moves made from the Discord client too.
		from := gs.conn.ChannelID()
		if from == channelID {
			return nil
		}
		if err := gs.conn.Move(ctx, channelID); err != nil {
			if ctx.Err() != nil {
				// The transport may or may not have moved; start over.
				_ = gs.conn.Disconnect()
				m.teardownLocked(gs, "move timed out")
			}
			return &ConnectionError{GuildID: guildID, ChannelID: channelID, Err: err}
		}
		slog.Debug("voice: moved", "guild_id", guildID, "from", from, "to", channelID)
		return nil
	}

	gs.state = StateConnecting
	conn, err := m.platform.Connect(ctx, guildID, channelID)
	if err != nil {
		gs.state = StateDisconnected
		return &ConnectionError{GuildID: guildID, ChannelID: channelID, Err: err}
	}

	gs.conn = conn
	gs.state = StateIdle
	gs.pending = 0
	gs.gen++
	conn.OnDisconnect(func(err error) {
		// The transport may fire this from inside one of its own calls made
		// under gs.mu.
		go m.handleDisconnect(guildID, conn, err)
	})
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), 1)
	}
	slog.Info("voice: joined", "guild_id", guildID, "channel_id", channelID)
	return nil
}

// playLocked implements [Manager.Play]. gs.mu must be held.
func (m *Manager) playLocked(ctx context.Context, gs *guildSession, src audio.Source, opts PlayOptions) (PlayResult, error) {
	if gs.conn == nil {
		return PlayResult{}, ErrNoSession
	}

	ctx, cancel := withTimeout(ctx, m.playTimeout)
	defer cancel()

	guildID := gs.guildID
	if gs.pending > 0 {
		q, canQueue := gs.conn.(audio.Queuer)
		if !opts.Enqueue || !canQueue {
			return PlayResult{}, ErrBusy
		}
		done, err := q.Enqueue(ctx, src)
		if err != nil {
			return PlayResult{}, fmt.Errorf("voice: enqueue in guild %s: %w", guildID, err)
		}
		gs.pending++
		go m.await(gs, gs.gen, done, src.Name(), opts.Kind)
		slog.Debug("voice: queued", "guild_id", guildID, "source", src.Name(), "pending", gs.pending)
		return PlayResult{Queued: true}, nil
	}

	done, err := gs.conn.Play(ctx, src)
	if err != nil {
		return PlayResult{}, fmt.Errorf("voice: play in guild %s: %w", guildID, err)
	}
	gs.pending = 1
	gs.state = StateBusy
	go m.await(gs, gs.gen, done, src.Name(), opts.Kind)
	slog.Debug("voice: playing", "guild_id", guildID, "source", src.Name())
	return PlayResult{}, nil
}

// await waits for one playback to complete and releases the session.
func (m *Manager) await(gs *guildSession, gen uint64, done <-chan error, name, kind string) {
	start := time.Now()
	err := <-done

	if m.metrics != nil {
		if kind == "" {
			kind = "file"
		}
		m.metrics.PlaybackDuration.Record(context.Background(), time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("kind", kind)))
	}
	switch {
	case err == nil, errors.Is(err, audio.ErrStopped), errors.Is(err, audio.ErrClosed):
		slog.Debug("voice: playback finished", "guild_id", gs.guildID, "source", name, "result", err)
	default:
		slog.Warn("voice: playback failed", "guild_id", gs.guildID, "source", name, "err", err)
	}

	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.gen != gen || gs.pending == 0 {
		return
	}
	gs.pending--
	if gs.pending == 0 && gs.conn != nil {
		gs.state = StateIdle
	}
}

// Stop aborts the guild's playback and any queued sources. The session is
// idle when Stop returns, regardless of what the transport reports. Stopping
// an idle or unknown guild is a no-op.
func (m *Manager) Stop(_ context.Context, guildID string) error {
	gs, ok := m.lookup(guildID)
	if !ok {
		return nil
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.conn == nil || gs.pending == 0 {
		return nil
	}
	err := gs.conn.Stop()
	gs.pending = 0
	gs.gen++
	gs.state = StateIdle
	if err != nil {
		return fmt.Errorf("voice: stop in guild %s: %w", guildID, err)
	}
	return nil
}

// Leave disconnects the guild. Leaving a guild without session is a no-op.
func (m *Manager) Leave(_ context.Context, guildID string) error {
	gs, ok := m.lookup(guildID)
	if !ok {
		return nil
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.conn == nil {
		return nil
	}
	err := gs.conn.Disconnect()
	m.teardownLocked(gs, "left")
	if err != nil {
		return fmt.Errorf("voice: leave guild %s: %w", guildID, err)
	}
	return nil
}

// HandleGuildRemoved drops the session of a guild the bot no longer has
// access to.
func (m *Manager) HandleGuildRemoved(guildID string) {
	if err := m.Leave(context.Background(), guildID); err != nil {
		slog.Warn("voice: leaving removed guild", "guild_id", guildID, "err", err)
	}
}

// handleDisconnect reacts to the transport dropping conn on its own.
func (m *Manager) handleDisconnect(guildID string, conn audio.Connection, cause error) {
	gs, ok := m.lookup(guildID)
	if !ok {
		return
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.conn != conn {
		return
	}
	_ = conn.Disconnect()
	m.teardownLocked(gs, "transport disconnected")
	slog.Warn("voice: connection lost", "guild_id", guildID, "err", cause)
}

// teardownLocked resets gs to disconnected. gs.mu must be held.
func (m *Manager) teardownLocked(gs *guildSession, reason string) {
	if gs.conn == nil {
		return
	}
	gs.conn = nil
	gs.state = StateDisconnected
	gs.pending = 0
	gs.gen++
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("voice: session closed", "guild_id", gs.guildID, "reason", reason)
}

// State returns the lifecycle state of guildID.
func (m *Manager) State(guildID string) State {
	gs, ok := m.lookup(guildID)
	if !ok {
		return StateDisconnected
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.state
}

// CurrentChannel returns the channel the guild's connection sits in, as
// reported by the transport.
func (m *Manager) CurrentChannel(guildID string) (string, bool) {
	gs, ok := m.lookup(guildID)
	if !ok {
		return "", false
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.conn == nil {
		return "", false
	}
	return gs.conn.ChannelID(), true
}

// ActiveSessions returns the number of connected guilds.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	guilds := make([]*guildSession, 0, len(m.guilds))
	for _, gs := range m.guilds {
		guilds = append(guilds, gs)
	}
	m.mu.Unlock()

	n := 0
	for _, gs := range guilds {
		gs.mu.Lock()
		if gs.conn != nil {
			n++
		}
		gs.mu.Unlock()
	}
	return n
}

// Close disconnects every guild.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.guilds))
	for id := range m.guilds {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Leave(context.Background(), id); err != nil {
			slog.Warn("voice: disconnect on shutdown", "guild_id", id, "err", err)
		}
	}
}
