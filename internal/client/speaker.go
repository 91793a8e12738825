package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// FFPlaySink plays raw 16-bit PCM through an ffplay subprocess reading
// from stdin. It implements Sink: PlayAt sleeps until the scheduled start
// and then writes the chunk, and Halt restarts the process to drop any
// audio buffered inside it.
type FFPlaySink struct {
	path       string
	sampleRate int
	channels   int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFPlaySink creates a sink without starting ffplay; the process
// launches on first use
func NewFFPlaySink(path string, sampleRate, channels int) *FFPlaySink {
	if path == "" {
		path = "ffplay"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &FFPlaySink{path: path, sampleRate: sampleRate, channels: channels}
}

// PlayAt implements Sink. The wait for the start time is cancellable: a
// barge-in arriving mid-wait discards the chunk instead of playing it
// after the halt restarted the process.
func (s *FFPlaySink) PlayAt(ctx context.Context, start time.Time, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if wait := time.Until(start); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		// Halted between the wait elapsing and the write.
		return ctx.Err()
	}
	if err := s.ensureRunningLocked(); err != nil {
		return err
	}
	if _, err := s.stdin.Write(pcm); err != nil {
		return fmt.Errorf("failed to write to ffplay: %w", err)
	}
	return nil
}

// Halt implements Sink: it kills the ffplay process, discarding whatever
// it had buffered. The next PlayAt starts a fresh one.
func (s *FFPlaySink) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

// Close shuts the sink down
func (s *FFPlaySink) Close() error {
	return s.Halt()
}

func (s *FFPlaySink) ensureRunningLocked() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}

	// ffplay does not accept ffmpeg-style `-ac`; use `-ch_layout`.
	chLayout := "mono"
	if s.channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("failed to start ffplay: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

func (s *FFPlaySink) closeLocked() {
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
}
