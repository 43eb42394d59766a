// Package ytdlp resolves remote links with the yt-dlp binary and streams
// their audio through ffmpeg.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/MrWong99/pascal/pkg/audio"
	"github.com/MrWong99/pascal/pkg/audio/ffmpeg"
)

// ErrNoAudio is returned by [Fetcher.Fetch] when the link resolves to
// something without a playable stream, such as a playlist.
var ErrNoAudio = errors.New("ytdlp: no playable audio")

// runFunc runs a command and returns its stdout.
type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Fetcher resolves links with yt-dlp.
//
// Fetcher is safe for concurrent use.
type Fetcher struct {
	ytdlp  string
	ffmpeg string
	run    runFunc
}

// NewFetcher returns a Fetcher using the given binaries.
func NewFetcher(ytdlpPath, ffmpegPath string) *Fetcher {
	return &Fetcher{ytdlp: ytdlpPath, ffmpeg: ffmpegPath, run: runOutput}
}

// info is the subset of yt-dlp's JSON metadata the bot uses.
type info struct {
	Type       string  `json:"_type"`
	Title      string  `json:"title"`
	WebpageURL string  `json:"webpage_url"`
	Duration   float64 `json:"duration"`
	IsLive     bool    `json:"is_live"`
}

// Fetch resolves url and returns a source that streams it. Metadata is
// fetched eagerly so unreachable links fail here rather than mid-playback.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Stream, error) {
	out, err := f.run(ctx, f.ytdlp, metadataArgs(url)...)
	if err != nil {
		return nil, err
	}

	var meta info
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("ytdlp: parse metadata for %q: %w", url, err)
	}
	if meta.Type == "playlist" {
		return nil, fmt.Errorf("%w: %q is a playlist", ErrNoAudio, url)
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = url
	}
	return &Stream{
		url:    url,
		title:  title,
		live:   meta.IsLive,
		ytdlp:  f.ytdlp,
		ffmpeg: f.ffmpeg,
	}, nil
}

func metadataArgs(url string) []string {
	return []string{"--dump-single-json", "--no-playlist", "--no-warnings", "--", url}
}

func streamArgs(url string) []string {
	return []string{"--quiet", "--no-playlist", "-f", "bestaudio/best", "-o", "-", "--", url}
}

// runOutput runs bin and attaches its stderr to a failure.
func runOutput(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ytdlp: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ytdlp: %w", err)
	}
	return out, nil
}

// Stream is a resolved remote link. It implements [audio.Source].
type Stream struct {
	url    string
	title  string
	live   bool
	ytdlp  string
	ffmpeg string
}

// Name returns the title reported by the remote site, or the link.
func (s *Stream) Name() string { return s.title }

// URL returns the link the stream was resolved from.
func (s *Stream) URL() string { return s.url }

// Live reports whether the link is a live broadcast.
func (s *Stream) Live() bool { return s.live }

// Open pipes yt-dlp's download into ffmpeg.
func (s *Stream) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.ytdlp, streamArgs(s.url)...)
	dl := ffmpeg.NewProcess("ytdlp", cmd)

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ytdlp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ytdlp: start %q: %w", s.ytdlp, err)
	}

	rc, err := ffmpeg.Decode(ctx, s.ffmpeg, "pipe:0", pipe, dl)
	if err != nil {
		return nil, err
	}
	// ffmpeg holds its own copy of the read end; ours would keep yt-dlp
	// alive if ffmpeg exits early.
	if f, ok := pipe.(*os.File); ok {
		_ = f.Close()
	}
	return rc, nil
}

// Compile-time interface assertion.
var _ audio.Source = (*Stream)(nil)
