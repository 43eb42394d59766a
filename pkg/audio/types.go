package audio

import (
	"context"
	"io"
)

// PCM layout every [Source] produces: signed 16-bit little-endian,
// interleaved stereo at 48 kHz. This is what Discord's Opus encoder expects,
// so no resampling happens after decoding.
const (
	SampleRate     = 48000
	Channels       = 2
	BytesPerSample = 2
)

// Source is a playable clip or stream.
type Source interface {
	// Name is a display label: the clip name or the remote title.
	Name() string

	// Open starts decoding and returns the PCM stream. Cancelling ctx
	// aborts the decoder. Open is called once per playback, when the
	// transport actually starts streaming.
	Open(ctx context.Context) (io.ReadCloser, error)
}
