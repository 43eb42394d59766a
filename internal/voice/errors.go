package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by [Manager.Play] while the guild's session is
	// already playing something. It is a control signal, not a failure.
	ErrBusy = errors.New("voice: playback already in progress")

	// ErrNoSession is returned by [Manager.Play] when the guild has no
	// connected session.
	ErrNoSession = errors.New("voice: no active session")
)

// ConnectionError reports that the voice transport could not join or move
// to a channel.
type ConnectionError struct {
	GuildID   string
	ChannelID string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("voice: connect guild %s channel %s: %v", e.GuildID, e.ChannelID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
