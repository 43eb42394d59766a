package playback

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/pascal/internal/resilience"
	"github.com/MrWong99/pascal/internal/sound"
	"github.com/MrWong99/pascal/internal/voice"
)

// Reply translates an error returned by the [Orchestrator] into the text
// shown to the user.
func Reply(err error) string {
	var (
		unknown *UnknownSoundError
		remote  *RemoteSourceError
		connErr *voice.ConnectionError
		ioErr   *sound.IOError
	)
	switch {
	case errors.As(err, &unknown):
		var b strings.Builder
		fmt.Fprintf(&b, "I don't know this sound: **%s**\nType `/list` to see a list of sounds", unknown.Name)
		if unknown.Suggestion != "" {
			fmt.Fprintf(&b, "\nDid you mean **%s**?", unknown.Suggestion)
		}
		return b.String()
	case errors.Is(err, ErrNotInVoiceChannel):
		return "You need to be in a voice channel for that."
	case errors.Is(err, voice.ErrBusy):
		return "Already playing something. Use `/stop` first."
	case errors.As(err, &remote):
		if errors.Is(remote.Err, resilience.ErrCircuitOpen) {
			return "Couldn't stream that link: link playback is failing right now, try again later"
		}
		return "Couldn't stream that link: " + remote.Err.Error()
	case errors.As(err, &connErr):
		return "Couldn't join the voice channel."
	case errors.As(err, &ioErr):
		return "Couldn't read the sound library."
	default:
		return "Something went wrong."
	}
}

// Expected reports whether err is one of the user-facing conditions Reply
// knows about, as opposed to an internal failure worth logging loudly.
func Expected(err error) bool {
	var (
		unknown *UnknownSoundError
		remote  *RemoteSourceError
	)
	return errors.As(err, &unknown) ||
		errors.As(err, &remote) ||
		errors.Is(err, ErrNotInVoiceChannel) ||
		errors.Is(err, voice.ErrBusy)
}
