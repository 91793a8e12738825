package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts time for the scheduler so tests can drive it
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sink plays decoded PCM. PlayAt blocks until the chunk has been handed
// to the audio device, or until ctx is cancelled, in which case the chunk
// is discarded. Halt discards anything queued inside the sink.
type Sink interface {
	PlayAt(ctx context.Context, start time.Time, pcm []byte) error
	Halt() error
}

// DecodeFunc converts a received payload into raw PCM. The default is the
// identity function for streams that are already PCM.
type DecodeFunc func(payload []byte) ([]byte, error)

// Chunk is one received piece of synthesized audio awaiting playback
type Chunk struct {
	SequenceIndex int
	Payload       []byte
}

// SchedulerConfig carries the PCM stream parameters the scheduler needs
// to convert byte counts to durations
type SchedulerConfig struct {
	SampleRate     int
	Channels       int
	BytesPerSample int
}

func (c SchedulerConfig) bytesPerSecond() int {
	bps := c.SampleRate * c.Channels * c.BytesPerSample
	if bps <= 0 {
		bps = 24000 * 1 * 2
	}
	return bps
}

// Scheduler plays received audio chunks gaplessly in arrival order. Each
// chunk starts at the later of now and the end of the previous chunk, so
// bursts queue up back to back and gaps in arrival produce silence, never
// overlap.
type Scheduler struct {
	cfg    SchedulerConfig
	clock  Clock
	sink   Sink
	decode DecodeFunc
	logger *zap.Logger

	mu           sync.Mutex
	queue        []Chunk
	nextPlayTime time.Time
	generation   int
	runCtx       context.Context
	runCancel    context.CancelFunc
	closed       bool
	wake         chan struct{}
	quit         chan struct{}
}

// NewScheduler creates a scheduler over the given sink and starts its
// playback loop
func NewScheduler(cfg SchedulerConfig, sink Sink, decode DecodeFunc, logger *zap.Logger) *Scheduler {
	return newScheduler(cfg, systemClock{}, sink, decode, logger)
}

func newScheduler(cfg SchedulerConfig, clock Clock, sink Sink, decode DecodeFunc, logger *zap.Logger) *Scheduler {
	if decode == nil {
		decode = func(payload []byte) ([]byte, error) { return payload, nil }
	}
	s := &Scheduler{
		cfg:    cfg,
		clock:  clock,
		sink:   sink,
		decode: decode,
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	go s.loop()
	return s
}

// Enqueue adds one received chunk to the playback queue
func (s *Scheduler) Enqueue(chunk Chunk) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, chunk)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop is the barge-in path: it halts the sink, clears the queue and
// resets the timeline so the next enqueued chunk plays immediately. A
// chunk waiting inside the sink for its start time is cancelled, not
// played late.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.queue = nil
	s.nextPlayTime = time.Time{}
	s.generation++
	cancel := s.runCancel
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	cancel()
	if err := s.sink.Halt(); err != nil {
		s.logger.Warn("Failed to halt audio sink", zap.Error(err))
	}
}

// Close stops playback permanently
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.generation++
	cancel := s.runCancel
	s.mu.Unlock()

	cancel()
	close(s.quit)
	if err := s.sink.Halt(); err != nil {
		s.logger.Warn("Failed to halt audio sink", zap.Error(err))
	}
}

// NextPlayTime returns when the next enqueued chunk would start. A zero
// time means the timeline is idle and the next chunk plays immediately.
func (s *Scheduler) NextPlayTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextPlayTime
}

// QueueLen returns the number of chunks awaiting playback
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) loop() {
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
			for {
				chunk, generation, ok := s.pop()
				if !ok {
					break
				}
				s.play(chunk, generation)
			}
		}
	}
}

func (s *Scheduler) pop() (Chunk, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return Chunk{}, 0, false
	}
	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk, s.generation, true
}

func (s *Scheduler) play(chunk Chunk, generation int) {
	pcm, err := s.decode(chunk.Payload)
	if err != nil {
		// A chunk that fails to decode is skipped; the stream continues.
		s.logger.Warn("Skipping undecodable audio chunk",
			zap.Int("sequenceIndex", chunk.SequenceIndex),
			zap.Error(err))
		return
	}
	if len(pcm) == 0 {
		return
	}

	now := s.clock.Now()

	s.mu.Lock()
	if s.generation != generation || s.closed {
		// Stopped while this chunk was in flight.
		s.mu.Unlock()
		return
	}
	start := now
	if s.nextPlayTime.After(start) {
		start = s.nextPlayTime
	}
	s.nextPlayTime = start.Add(durationForBytes(len(pcm), s.cfg.bytesPerSecond()))
	// The generation check and the ctx the sink waits on are taken under
	// the same lock, so a Stop after this point cancels the wait.
	ctx := s.runCtx
	s.mu.Unlock()

	if err := s.sink.PlayAt(ctx, start, pcm); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Failed to play audio chunk",
			zap.Int("sequenceIndex", chunk.SequenceIndex),
			zap.Error(err))
	}
}

// durationForBytes converts a PCM byte count to its playback duration
func durationForBytes(n, bytesPerSecond int) time.Duration {
	if n <= 0 || bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bytesPerSecond))
}
