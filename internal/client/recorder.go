package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Recorder captures microphone audio as fixed-interval PCM chunks
type Recorder interface {
	// Start begins capture. Chunks become available on Chunks().
	Start(ctx context.Context) error
	// Chunks delivers captured PCM, one capture interval per chunk. The
	// channel closes when capture ends.
	Chunks() <-chan []byte
	// Close stops capture and releases the device.
	Close() error
}

// FFmpegRecorder captures the default microphone through an ffmpeg
// subprocess emitting raw 16-bit PCM on stdout
type FFmpegRecorder struct {
	path           string
	device         string
	sampleRate     int
	channels       int
	bytesPerSample int
	interval       time.Duration

	mu     sync.Mutex
	cmd    *exec.Cmd
	chunks chan []byte
	closed bool
}

// NewFFmpegRecorder creates a recorder. An empty device selects the
// platform default microphone.
func NewFFmpegRecorder(path, device string, sampleRate, channels, bytesPerSample int, interval time.Duration) *FFmpegRecorder {
	if path == "" {
		path = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &FFmpegRecorder{
		path:           path,
		device:         device,
		sampleRate:     sampleRate,
		channels:       channels,
		bytesPerSample: bytesPerSample,
		interval:       interval,
		chunks:         make(chan []byte, 8),
	}
}

// Start implements Recorder
func (r *FFmpegRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if r.cmd != nil {
		return fmt.Errorf("recorder already started")
	}

	inputFormat, device := captureInput(r.device)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", inputFormat,
		"-i", device,
		"-ac", fmt.Sprintf("%d", r.channels),
		"-ar", fmt.Sprintf("%d", r.sampleRate),
		"-f", "s16le",
		"-",
	}
	cmd := exec.CommandContext(ctx, r.path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	r.cmd = cmd

	bytesPerChunk := r.sampleRate * r.channels * r.bytesPerSample *
		int(r.interval.Milliseconds()) / 1000

	go r.readLoop(stdout, bytesPerChunk)
	return nil
}

// Chunks implements Recorder
func (r *FFmpegRecorder) Chunks() <-chan []byte {
	return r.chunks
}

// Close implements Recorder
func (r *FFmpegRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.cmd != nil && r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	return nil
}

func (r *FFmpegRecorder) readLoop(stdout io.Reader, bytesPerChunk int) {
	defer close(r.chunks)
	for {
		chunk := make([]byte, bytesPerChunk)
		n, err := io.ReadFull(stdout, chunk)
		if n > 0 {
			r.chunks <- chunk[:n]
		}
		if err != nil {
			return
		}
	}
}

// captureInput returns the ffmpeg input format and device for the current
// platform
func captureInput(device string) (string, string) {
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return "avfoundation", device
	case "windows":
		if device == "" {
			device = "audio=default"
		}
		return "dshow", device
	default:
		if device == "" {
			device = "default"
		}
		return "alsa", device
	}
}
