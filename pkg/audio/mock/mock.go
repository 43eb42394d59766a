// Package mock provides in-memory implementations of [audio.Platform],
// [audio.Connection], [audio.Queuer] and [audio.Source] for unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose exported fields to control
// return values. Playbacks stay pending until the test completes them with
// [Connection.Finish], which mimics a clip reaching its end.
//
// Typical usage:
//
//	platform := &mock.Platform{}
//	mgr := voice.NewManager(platform)
//	_ = mgr.Join(ctx, "guild", "channel")
//	conn := platform.Created()[0]
//	_, _ = mgr.Play(ctx, "guild", mock.NewSource("airhorn"), voice.PlayOptions{})
//	conn.Finish(nil)
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/pascal/pkg/audio"
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] that yields Data as its PCM stream.
type Source struct {
	mu sync.Mutex

	SourceName string

	// Data is returned by Open.
	Data []byte

	// OpenError is returned by Open.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int
}

// NewSource returns a Source with the given name and no data.
func NewSource(name string) *Source {
	return &Source{SourceName: name}
}

// Name implements [audio.Source].
func (s *Source) Name() string { return s.SourceName }

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// ─── Connection ──────────────────────────────────────────────────────────────

// PlayCall records one [Connection.Play] or [QueueConnection.Enqueue].
type PlayCall struct {
	Source audio.Source
	Queued bool
}

// Connection is a mock [audio.Connection].
type Connection struct {
	mu sync.Mutex

	// Channel is returned by ChannelID and updated by Move.
	Channel string

	PlayError       error
	MoveError       error
	StopError       error
	DisconnectError error

	// BlockPlay and BlockMove make the call wait for its context to end and
	// return the context error, simulating an unresponsive transport.
	BlockPlay bool
	BlockMove bool

	PlayCalls           []PlayCall
	MoveCalls           []string
	CallCountStop       int
	CallCountDisconnect int

	pending      []chan error
	onDisconnect func(error)
}

// ChannelID implements [audio.Connection].
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Channel
}

// SetChannel changes the channel as if the bot had been moved from outside,
// without recording a Move call.
func (c *Connection) SetChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channel = channelID
}

// Move implements [audio.Connection].
func (c *Connection) Move(ctx context.Context, channelID string) error {
	c.mu.Lock()
	c.MoveCalls = append(c.MoveCalls, channelID)
	block, err := c.BlockMove, c.MoveError
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.Channel = channelID
	c.mu.Unlock()
	return nil
}

// Play implements [audio.Connection]. The playback stays pending until
// [Connection.Finish], [Connection.Stop], [Connection.Drop] or
// [Connection.Disconnect].
func (c *Connection) Play(ctx context.Context, src audio.Source) (<-chan error, error) {
	return c.submit(ctx, src, false)
}

func (c *Connection) submit(ctx context.Context, src audio.Source, queued bool) (<-chan error, error) {
	c.mu.Lock()
	c.PlayCalls = append(c.PlayCalls, PlayCall{Source: src, Queued: queued})
	if c.BlockPlay {
		c.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer c.mu.Unlock()
	if c.PlayError != nil {
		return nil, c.PlayError
	}
	done := make(chan error, 1)
	c.pending = append(c.pending, done)
	return done, nil
}

// Stop implements [audio.Connection]. Every pending playback completes
// with [audio.ErrStopped].
func (c *Connection) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	c.completeAll(audio.ErrStopped)
	return c.StopError
}

// OnDisconnect implements [audio.Connection].
func (c *Connection) OnDisconnect(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

// Disconnect implements [audio.Connection]. Pending playbacks complete with
// [audio.ErrClosed]; the OnDisconnect callback is not invoked.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	c.completeAll(audio.ErrClosed)
	return c.DisconnectError
}

// Finish completes the oldest pending playback with err. It reports false
// when nothing is pending.
func (c *Connection) Finish(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return false
	}
	done := c.pending[0]
	c.pending = c.pending[1:]
	done <- err
	close(done)
	return true
}

// Drop simulates the remote side tearing the connection down: pending
// playbacks complete with [audio.ErrClosed] and the OnDisconnect callback
// runs with err.
func (c *Connection) Drop(err error) {
	c.mu.Lock()
	c.completeAll(audio.ErrClosed)
	cb := c.onDisconnect
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Pending returns the number of playbacks not yet completed.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Plays returns a snapshot of PlayCalls.
func (c *Connection) Plays() []PlayCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PlayCall, len(c.PlayCalls))
	copy(out, c.PlayCalls)
	return out
}

// Moves returns a snapshot of MoveCalls.
func (c *Connection) Moves() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.MoveCalls))
	copy(out, c.MoveCalls)
	return out
}

// StopCount returns CallCountStop.
func (c *Connection) StopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountStop
}

// DisconnectCount returns CallCountDisconnect.
func (c *Connection) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}

// completeAll must be called with c.mu held.
func (c *Connection) completeAll(err error) {
	for _, done := range c.pending {
		done <- err
		close(done)
	}
	c.pending = nil
}

// QueueConnection is a mock connection that also implements [audio.Queuer].
type QueueConnection struct {
	Connection
}

// Enqueue implements [audio.Queuer].
func (c *QueueConnection) Enqueue(ctx context.Context, src audio.Source) (<-chan error, error) {
	return c.submit(ctx, src, true)
}

// ─── Platform ────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect].
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock [audio.Platform].
//
// Connect returns, in order of precedence: ConnectError, the result of
// ConnectFunc, ConnectResult, or a fresh [*Connection] recorded in
// [Platform.Created].
type Platform struct {
	mu sync.Mutex

	ConnectResult audio.Connection
	ConnectFunc   func(guildID, channelID string) (audio.Connection, error)
	ConnectError  error

	// Block makes Connect wait for its context to end.
	Block bool

	ConnectCalls []ConnectCall

	created []*Connection
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	block := p.Block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.ConnectError != nil:
		return nil, p.ConnectError
	case p.ConnectFunc != nil:
		fn := p.ConnectFunc
		// ConnectFunc may block; it runs without the lock held.
		p.mu.Unlock()
		defer p.mu.Lock()
		return fn(guildID, channelID)
	case p.ConnectResult != nil:
		return p.ConnectResult, nil
	}
	conn := &Connection{Channel: channelID}
	p.created = append(p.created, conn)
	return conn, nil
}

// Calls returns a snapshot of ConnectCalls.
func (p *Platform) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Created returns the connections Connect created on its own.
func (p *Platform) Created() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, len(p.created))
	copy(out, p.created)
	return out
}

// Compile-time interface assertions.
var (
	_ audio.Platform   = (*Platform)(nil)
	_ audio.Connection = (*Connection)(nil)
	_ audio.Connection = (*QueueConnection)(nil)
	_ audio.Queuer     = (*QueueConnection)(nil)
	_ audio.Source     = (*Source)(nil)
)
