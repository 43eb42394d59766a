// Package ffmpeg decodes audio files and streams to the PCM layout described
// in package audio by running the ffmpeg binary.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/pascal/pkg/audio"
)

// stderrLimit bounds how much diagnostic output is kept per process.
const stderrLimit = 4 << 10

// Args returns the ffmpeg arguments that decode input to raw 48 kHz stereo
// s16le on stdout. input is a path or "pipe:0".
func Args(input string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"pipe:1",
	}
}

// File is an [audio.Source] for a clip on disk.
type File struct {
	bin  string
	name string
	path string
}

// NewFile returns a source that decodes path with the ffmpeg binary at bin.
func NewFile(bin, name, path string) *File {
	return &File{bin: bin, name: name, path: path}
}

// Name returns the clip name.
func (f *File) Name() string { return f.name }

// Path returns the file the clip is decoded from.
func (f *File) Path() string { return f.path }

// Open starts ffmpeg on the file.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	return Decode(ctx, f.bin, f.path, nil)
}

// Decode starts ffmpeg reading input and returns its PCM output. When stdin
// is non-nil it feeds ffmpeg and input should be "pipe:0". upstream lists
// already started processes producing stdin; they are killed and reaped
// together with ffmpeg when the returned reader is closed.
func Decode(ctx context.Context, bin, input string, stdin io.Reader, upstream ...*Process) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, bin, Args(input)...)
	cmd.Stdin = stdin
	p := NewProcess("ffmpeg", cmd)

	out, err := cmd.StdoutPipe()
	if err != nil {
		killAll(upstream)
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		killAll(upstream)
		return nil, fmt.Errorf("ffmpeg: start %q: %w", bin, err)
	}
	return &reader{out: out, procs: append([]*Process{p}, upstream...)}, nil
}

// Process is a child process whose stderr is captured for error reports.
type Process struct {
	label  string
	cmd    *exec.Cmd
	stderr *tailBuffer

	once sync.Once
	err  error
}

// NewProcess wraps cmd, which must not have been started, and captures its
// stderr. label prefixes error messages.
func NewProcess(label string, cmd *exec.Cmd) *Process {
	buf := &tailBuffer{max: stderrLimit}
	cmd.Stderr = buf
	return &Process{label: label, cmd: cmd, stderr: buf}
}

// Wait reaps the process once and reports a non-zero exit together with the
// tail of its stderr.
func (p *Process) Wait() error {
	p.once.Do(func() {
		if err := p.cmd.Wait(); err != nil {
			msg := strings.TrimSpace(p.stderr.String())
			if msg == "" {
				p.err = fmt.Errorf("%s: %w", p.label, err)
			} else {
				p.err = fmt.Errorf("%s: %w: %s", p.label, err, msg)
			}
		}
	})
	return p.err
}

// Kill terminates the process if it is still running.
func (p *Process) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func killAll(procs []*Process) {
	for _, p := range procs {
		p.Kill()
		_ = p.Wait()
	}
}

// reader streams the stdout of the last process of a pipeline.
type reader struct {
	out    io.ReadCloser
	procs  []*Process
	closed bool
}

// Read returns the decoded PCM. At end of stream it reports the first
// process of the pipeline that exited with an error.
func (r *reader) Read(p []byte) (int, error) {
	n, err := r.out.Read(p)
	if errors.Is(err, io.EOF) {
		for _, proc := range r.procs {
			if werr := proc.Wait(); werr != nil {
				return n, werr
			}
		}
	}
	return n, err
}

// Close stops the pipeline and reaps its processes.
func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.out.Close()
	killAll(r.procs)
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Compile-time interface assertion.
var _ audio.Source = (*File)(nil)
