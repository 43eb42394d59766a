// Package audio defines the voice transport contracts the sound bot plays
// through.
//
// The two primary abstractions are:
//
//   - [Platform]: joins a guild's voice channel and returns a [Connection].
//   - [Connection]: a live voice connection that streams one [Source] at a
//     time and reports when it is torn down from the outside.
//
// A Connection may additionally implement [Queuer] when the transport can
// hold further sources behind the one currently playing.
//
// The Discord implementation lives in audio/discord; hand-written test
// doubles live in audio/mock.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrStopped completes a playback that was cut short by
	// [Connection.Stop] or dropped from the queue.
	ErrStopped = errors.New("audio: playback stopped")

	// ErrClosed is returned by calls on a disconnected [Connection] and
	// completes any playback still pending when it disconnects.
	ErrClosed = errors.New("audio: connection closed")
)

// Connection is a live voice connection in one guild.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// ChannelID returns the voice channel the connection currently sits in.
	ChannelID() string

	// Move switches the connection to another channel of the same guild.
	// A playback in progress keeps running.
	Move(ctx context.Context, channelID string) error

	// Play starts streaming src. ctx bounds the hand-off to the transport
	// only. The returned channel receives exactly one value (nil on natural
	// end, [ErrStopped], [ErrClosed] or a streaming error) and is then
	// closed.
	Play(ctx context.Context, src Source) (<-chan error, error)

	// Stop aborts the current playback and drops anything queued. It does
	// not wait for the transport to acknowledge.
	Stop() error

	// OnDisconnect registers cb to run when the connection is torn down by
	// the remote side (kicked, channel deleted, gateway loss). It is not
	// called for [Connection.Disconnect]. Only one callback is kept.
	OnDisconnect(cb func(error))

	// Disconnect leaves the channel and releases all resources. It is safe
	// to call more than once.
	Disconnect() error
}

// Queuer is implemented by connections that can play sources back to back.
type Queuer interface {
	// Enqueue appends src behind the sources already playing or queued. The
	// returned channel behaves as for [Connection.Play].
	Enqueue(ctx context.Context, src Source) (<-chan error, error)
}

// Platform joins voice channels.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins channelID in guildID. ctx bounds the connection attempt
	// only; the returned Connection lives until it is disconnected.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
