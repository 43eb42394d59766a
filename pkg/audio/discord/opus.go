package discord

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/pascal/pkg/audio"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = audio.SampleRate * opusFrameSizeMs / 1000 // 960

	// opusFrameBytes is the exact PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
	opusFrameBytes = opusFrameSize * audio.Channels * audio.BytesPerSample

	// maxOpusPacket bounds a single encoded packet.
	maxOpusPacket = 4000
)

// opusEncoder wraps a gopus Opus encoder for the output stream. It keeps
// encoder state across frames, so one encoder serves one connection.
type opusEncoder struct {
	enc *gopus.Encoder
	pcm []int16
}

// newOpusEncoder creates a new Opus encoder configured for Discord audio.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc, pcm: make([]int16, opusFrameBytes/audio.BytesPerSample)}, nil
}

// encode encodes one frame of interleaved little-endian PCM into an Opus
// packet. frame must be exactly opusFrameBytes long.
func (e *opusEncoder) encode(frame []byte) ([]byte, error) {
	for i := range e.pcm {
		e.pcm[i] = int16(frame[i*2]) | int16(frame[i*2+1])<<8
	}
	opus, err := e.enc.Encode(e.pcm, opusFrameSize, maxOpusPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return opus, nil
}
