package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pascal/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Connection = (*Connection)(nil)
	_ audio.Queuer     = (*Connection)(nil)
)

// errRemoved is reported to the disconnect callback when Discord removes the
// bot from voice (kick, channel deletion, manual disconnect).
var errRemoved = errors.New("discord: removed from voice channel")

// job is one source waiting for or going through the send loop.
type job struct {
	src    audio.Source
	ctx    context.Context
	cancel context.CancelFunc
	done   chan error

	once   sync.Once
	reason error // set before cancel to report why the job ended early
}

// finish delivers err exactly once.
func (j *job) finish(err error) {
	j.once.Do(func() {
		j.done <- err
		close(j.done)
		j.cancel()
	})
}

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. A single send loop streams queued sources in
// order, encoding their PCM to Opus frames on the way.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc       *discordgo.VoiceConnection
	guildID  string
	botID    string
	baseCtx  context.Context
	baseStop context.CancelFunc

	mu           sync.Mutex
	channelID    string
	current      *job
	queue        []*job
	onDisconnect func(error)
	closed       bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// Transport hooks. They default to the voice connection's methods and are
	// overridden in tests.
	send          chan<- []byte
	speaking      func(bool) error
	changeChannel func(channelID string) error
	disconnectVC  func() error
}

// newConnection wraps an already-joined voice connection and starts its send
// loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, channelID string) (*Connection, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		_ = vc.Disconnect()
		return nil, err
	}

	c := newBareConnection(vc, guildID, channelID)
	c.speaking = vc.Speaking
	c.changeChannel = func(ch string) error { return vc.ChangeChannel(ch, false, true) }
	c.disconnectVC = vc.Disconnect
	if session != nil {
		if session.State != nil && session.State.User != nil {
			c.botID = session.State.User.ID
		}
		c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)
	}

	go c.sendLoop(enc)
	return c, nil
}

// newBareConnection builds the connection state without transport hooks.
func newBareConnection(vc *discordgo.VoiceConnection, guildID, channelID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		vc:        vc,
		guildID:   guildID,
		channelID: channelID,
		baseCtx:   ctx,
		baseStop:  cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		send:      vc.OpusSend,
	}
}

// ChannelID returns the voice channel the connection currently sits in.
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// Move switches to channelID. Playback continues across the move.
func (c *Connection) Move(ctx context.Context, channelID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return audio.ErrClosed
	}
	c.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- c.changeChannel(channelID) }()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("discord: move to channel %q: %w", channelID, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("discord: move to channel %q: %w", channelID, ctx.Err())
	}

	c.mu.Lock()
	c.channelID = channelID
	c.mu.Unlock()
	return nil
}

// Play replaces whatever is playing or queued with src.
func (c *Connection) Play(ctx context.Context, src audio.Source) (<-chan error, error) {
	return c.submit(ctx, src, true)
}

// Enqueue appends src behind the sources already playing or queued.
func (c *Connection) Enqueue(ctx context.Context, src audio.Source) (<-chan error, error) {
	return c.submit(ctx, src, false)
}

func (c *Connection) submit(ctx context.Context, src audio.Source, replace bool) (<-chan error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, audio.ErrClosed
	}
	if replace {
		c.abortLocked(audio.ErrStopped)
	}

	jctx, cancel := context.WithCancel(c.baseCtx)
	j := &job{src: src, ctx: jctx, cancel: cancel, done: make(chan error, 1)}
	c.queue = append(c.queue, j)

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return j.done, nil
}

// Stop aborts the current playback and drops the queue.
func (c *Connection) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.abortLocked(audio.ErrStopped)
	return nil
}

// abortLocked ends the current job and every queued job with reason.
// c.mu must be held.
func (c *Connection) abortLocked(reason error) {
	if c.current != nil {
		c.current.reason = reason
		c.current.cancel()
		c.current = nil
	}
	for _, j := range c.queue {
		j.finish(reason)
	}
	c.queue = nil
}

// OnDisconnect registers cb as the callback for Discord removing the bot from
// voice. Only one callback may be registered; subsequent calls replace the
// previous one.
func (c *Connection) OnDisconnect(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

// Disconnect cleanly tears down the voice connection and stops the send loop.
// It is safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	return c.teardown()
}

func (c *Connection) teardown() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.abortLocked(audio.ErrClosed)
		c.mu.Unlock()

		c.baseStop()
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// next blocks until a job is queued or the connection closes. It returns nil
// once closed.
func (c *Connection) next() *job {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		if len(c.queue) > 0 {
			j := c.queue[0]
			c.queue = c.queue[1:]
			c.current = j
			c.mu.Unlock()
			return j
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-c.done:
			return nil
		}
	}
}

// sendLoop streams queued jobs one after another until the connection closes.
func (c *Connection) sendLoop(enc *opusEncoder) {
	for {
		j := c.next()
		if j == nil {
			return
		}
		err := c.stream(j, enc)

		c.mu.Lock()
		if c.current == j {
			c.current = nil
		}
		if j.reason != nil {
			err = j.reason
		}
		c.mu.Unlock()

		if err != nil && !errors.Is(err, audio.ErrStopped) && !errors.Is(err, audio.ErrClosed) {
			slog.Warn("discord: playback error", "guild_id", c.guildID, "source", j.src.Name(), "error", err)
		}
		j.finish(err)
	}
}

// stream decodes j's source and sends it as 20 ms Opus frames. A trailing
// partial frame is padded with silence.
func (c *Connection) stream(j *job, enc *opusEncoder) error {
	rc, err := j.src.Open(j.ctx)
	if err != nil {
		return fmt.Errorf("discord: open %q: %w", j.src.Name(), err)
	}
	defer rc.Close()

	c.setSpeaking(true)
	defer c.setSpeaking(false)

	frame := make([]byte, opusFrameBytes)
	for {
		n, err := io.ReadFull(rc, frame)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			clear(frame[n:])
		case err != nil:
			if j.ctx.Err() != nil {
				return j.ctx.Err()
			}
			return fmt.Errorf("discord: read %q: %w", j.src.Name(), err)
		}

		opus, eErr := enc.encode(frame)
		if eErr != nil {
			return eErr
		}
		select {
		case c.send <- opus:
		case <-j.ctx.Done():
			return j.ctx.Err()
		}
		if n < opusFrameBytes {
			return nil
		}
	}
}

// handleVoiceStateUpdate tracks the bot's own voice state in this guild:
// a channel change follows a move made from the Discord client, an empty
// channel means Discord dropped the bot.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.VoiceState == nil || vsu.GuildID != c.guildID || c.botID == "" || vsu.UserID != c.botID {
		return
	}

	if vsu.ChannelID != "" {
		c.mu.Lock()
		c.channelID = vsu.ChannelID
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	closed := c.closed
	cb := c.onDisconnect
	c.mu.Unlock()
	if closed {
		// Our own Disconnect.
		return
	}

	slog.Info("discord: removed from voice", "guild_id", c.guildID)
	_ = c.teardown()
	if cb != nil {
		go cb(errRemoved)
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if c.speaking == nil {
		return
	}
	if err := c.speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
