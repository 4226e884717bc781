package compressor

import (
	"context"
	"time"
)

// Status is the final state of a single compression attempt.
type Status string

const (
	// StatusCompleted means ResultPath holds a smaller encoding of the original.
	StatusCompleted Status = "completed"
	// StatusFailed means no usable result was produced.
	StatusFailed Status = "failed"
	// StatusUnchanged means the re-encoded file was not smaller and was discarded.
	StatusUnchanged Status = "unchanged"
	// StatusSkipped means the file already carries the optimized mark.
	StatusSkipped Status = "skipped"
)

// Outcome describes the result of compressing a single file.
type Outcome struct {
	OriginalPath   string
	ResultPath     string
	OriginalSize   int64
	CompressedSize int64
	Supported      bool
	Status         Status
	Message        string
	StartedAt      time.Time
	FinishedAt     time.Time
	Err            error
}

// Completed reports whether the outcome carries a result to swap in.
func (o Outcome) Completed() bool {
	return o.Status == StatusCompleted
}

// PercentageSaved returns how much smaller the result is, in percent.
func (o Outcome) PercentageSaved() float64 {
	if o.OriginalSize <= 0 {
		return 0
	}
	return float64(o.OriginalSize-o.CompressedSize) * 100 / float64(o.OriginalSize)
}

// Compressor defines the interface for image compression.
type Compressor interface {
	// IsSupported reports whether the file format can be compressed. No side effects.
	IsSupported(path string) bool
	// Compress writes a compressed copy of path to a new file and reports where.
	// It never modifies or removes the original.
	Compress(ctx context.Context, path string, lossy bool) Outcome
}
