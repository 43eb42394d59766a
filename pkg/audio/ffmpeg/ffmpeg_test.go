package ffmpeg

import (
	"context"
	"io"
	"os/exec"
	"slices"
	"strings"
	"testing"
)

func TestArgs(t *testing.T) {
	t.Parallel()

	args := Args("clip.mp3")
	want := []string{"-i", "clip.mp3", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1"}
	for i := 0; i+1 < len(want); i += 2 {
		idx := slices.Index(args, want[i])
		if idx < 0 || idx+1 >= len(args) || args[idx+1] != want[i+1] {
			t.Errorf("Args missing %s %s: %v", want[i], want[i+1], args)
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
	}
}

func TestFile_NameAndPath(t *testing.T) {
	t.Parallel()

	f := NewFile("ffmpeg", "airhorn", "/sounds/airhorn.mp3")
	if f.Name() != "airhorn" {
		t.Errorf("Name = %q", f.Name())
	}
	if f.Path() != "/sounds/airhorn.mp3" {
		t.Errorf("Path = %q", f.Path())
	}
}

func TestDecode_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := Decode(context.Background(), "/nonexistent/ffmpeg", "clip.mp3", nil)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !strings.Contains(err.Error(), "ffmpeg: start") {
		t.Errorf("error = %v", err)
	}
}

func shell(t *testing.T, script string) *Process {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return NewProcess("test", exec.Command("sh", "-c", script))
}

func startReader(t *testing.T, p *Process) io.ReadCloser {
	t.Helper()
	out, err := p.cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v", err)
	}
	if err := p.cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r := &reader{out: out, procs: []*Process{p}}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestReader_Success(t *testing.T) {
	t.Parallel()

	r := startReader(t, shell(t, "printf pcm"))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "pcm" {
		t.Errorf("output = %q, want pcm", got)
	}
}

func TestReader_ExitErrorCarriesStderr(t *testing.T) {
	t.Parallel()

	r := startReader(t, shell(t, "echo 'Invalid data found' >&2; exit 1"))
	_, err := io.ReadAll(r)
	if err == nil {
		t.Fatal("expected error from failing process")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error = %v, want stderr text", err)
	}
}

func TestReader_CloseKillsProcess(t *testing.T) {
	t.Parallel()

	r := startReader(t, shell(t, "while true; do printf x; done"))
	buf := make([]byte, 16)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	t.Parallel()

	b := &tailBuffer{max: 5}
	_, _ = b.Write([]byte("hello "))
	_, _ = b.Write([]byte("world"))
	if got := b.String(); got != "world" {
		t.Errorf("tail = %q, want world", got)
	}
}
