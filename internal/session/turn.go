package session

import (
	"go.uber.org/zap"
)

// SealStrategy decides when the accumulated chunks form a complete
// utterance. The default is a chunk-count heuristic; energy-threshold or
// model-based detectors can be plugged in without touching the detector.
type SealStrategy interface {
	ShouldSeal(chunks int, totalBytes int) bool
}

// ChunkCountStrategy seals after a fixed number of chunks have arrived
// since the last seal, roughly a fixed time window at the capture cadence
type ChunkCountStrategy struct {
	Threshold int
}

// ShouldSeal implements SealStrategy
func (s ChunkCountStrategy) ShouldSeal(chunks int, _ int) bool {
	return chunks >= s.Threshold
}

// TurnDetector accumulates inbound audio chunks and declares utterance
// boundaries. It is not safe for concurrent use; one session feeds it from
// a single read loop.
type TurnDetector struct {
	strategy SealStrategy
	minBytes int
	logger   *zap.Logger

	chunks     [][]byte
	totalBytes int
}

// NewTurnDetector creates a detector. Sealed buffers smaller than minBytes
// are discarded silently instead of producing a pipeline run.
func NewTurnDetector(strategy SealStrategy, minBytes int, logger *zap.Logger) *TurnDetector {
	return &TurnDetector{
		strategy: strategy,
		minBytes: minBytes,
		logger:   logger,
		chunks:   make([][]byte, 0),
	}
}

// Ingest appends one captured chunk. When the strategy declares the
// utterance complete, it returns the concatenation of all accumulated
// chunks in arrival order and true; otherwise nil and false. A sealed
// buffer below the minimum size is dropped without a seal.
func (d *TurnDetector) Ingest(chunk []byte) ([]byte, bool) {
	d.chunks = append(d.chunks, chunk)
	d.totalBytes += len(chunk)

	if !d.strategy.ShouldSeal(len(d.chunks), d.totalBytes) {
		return nil, false
	}

	sealed := make([]byte, 0, d.totalBytes)
	for _, c := range d.chunks {
		sealed = append(sealed, c...)
	}
	count := len(d.chunks)
	d.reset()

	if len(sealed) < d.minBytes {
		d.logger.Warn("Utterance below minimum size, discarding",
			zap.Int("bytes", len(sealed)),
			zap.Int("minBytes", d.minBytes),
			zap.Int("chunks", count))
		return nil, false
	}

	d.logger.Debug("Utterance sealed",
		zap.Int("bytes", len(sealed)),
		zap.Int("chunks", count))
	return sealed, true
}

// Discard drops the pending buffer without sealing it. Used on stop so a
// partially accumulated utterance never reaches the pipeline.
func (d *TurnDetector) Discard() int {
	dropped := len(d.chunks)
	d.reset()
	return dropped
}

// PendingChunks returns the number of chunks accumulated since the last
// seal or discard
func (d *TurnDetector) PendingChunks() int {
	return len(d.chunks)
}

func (d *TurnDetector) reset() {
	d.chunks = d.chunks[:0]
	d.totalBytes = 0
}
