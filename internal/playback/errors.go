package playback

import (
	"errors"
	"fmt"
)

// ErrNotInVoiceChannel is returned by [Orchestrator.Play] when the caller is
// not in a voice channel and the bot is not connected in the guild either.
var ErrNotInVoiceChannel = errors.New("playback: not in a voice channel")

// UnknownSoundError reports a name that is not in the catalog.
type UnknownSoundError struct {
	Name string

	// Suggestion is a similar catalog name, if one exists.
	Suggestion string
}

func (e *UnknownSoundError) Error() string {
	return fmt.Sprintf("playback: unknown sound %q", e.Name)
}

// RemoteSourceError reports a link that could not be resolved. Err carries
// the upstream message.
type RemoteSourceError struct {
	URL string
	Err error
}

func (e *RemoteSourceError) Error() string {
	return fmt.Sprintf("playback: remote source %q: %v", e.URL, e.Err)
}

func (e *RemoteSourceError) Unwrap() error { return e.Err }
