package statistics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains counters for one optimization batch.
// Counters are atomic so the web server can read them while a batch runs.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesConverted      int64
	FilesUnsupported    int64
	FilesUnchanged      int64
	FilesSkipped        int64
	FilesFailed         int64
	FilesWithErrors     int64
	BackupsCreated      int64

	BytesBefore int64
	BytesAfter  int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	mutex sync.RWMutex

	FileTypeStats map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FileTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// SetFilesFound records how many candidates the batch will process.
func (s *Statistics) SetFilesFound(n int) {
	atomic.StoreInt64(&s.TotalFilesFound, int64(n))
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
}

// AddConverted records a replaced file and its size change.
func (s *Statistics) AddConverted(before, after int64) {
	atomic.AddInt64(&s.FilesConverted, 1)
	atomic.AddInt64(&s.BytesBefore, before)
	atomic.AddInt64(&s.BytesAfter, after)
}

func (s *Statistics) IncrementFilesUnsupported() {
	atomic.AddInt64(&s.FilesUnsupported, 1)
}

func (s *Statistics) IncrementFilesUnchanged() {
	atomic.AddInt64(&s.FilesUnchanged, 1)
}

func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

func (s *Statistics) IncrementBackupsCreated() {
	atomic.AddInt64(&s.BackupsCreated, 1)
}

// IncrementFileType increases the count for a specific file type by 1.
func (s *Statistics) IncrementFileType(fileType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FileTypeStats[fileType]++
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// BytesSaved returns the total size reduction of converted files.
func (s *Statistics) BytesSaved() int64 {
	return atomic.LoadInt64(&s.BytesBefore) - atomic.LoadInt64(&s.BytesAfter)
}

// HasFailures reports whether any file ended failed or with an error.
func (s *Statistics) HasFailures() bool {
	return atomic.LoadInt64(&s.FilesFailed) > 0 || atomic.LoadInt64(&s.FilesWithErrors) > 0
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	fps := s.FilesPerSecond
	s.mutex.RUnlock()

	before := atomic.LoadInt64(&s.BytesBefore)
	saved := s.BytesSaved()
	percent := 0.0
	if before > 0 {
		percent = float64(saved) * 100 / float64(before)
	}

	return fmt.Sprintf(`IOptimizer Summary:

Files:
		Found: %d
		Processed: %d
		Converted: %d
		Unchanged: %d
		Skipped: %d
		Unsupported: %d
		Failed: %d
		Errors: %d
		Backups: %d

Size:
		Before: %s
		After: %s
		Saved: %s (%.1f%%)

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.TotalFilesProcessed),
		atomic.LoadInt64(&s.FilesConverted),
		atomic.LoadInt64(&s.FilesUnchanged),
		atomic.LoadInt64(&s.FilesSkipped),
		atomic.LoadInt64(&s.FilesUnsupported),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.FilesWithErrors),
		atomic.LoadInt64(&s.BackupsCreated),
		FormatBytes(before),
		FormatBytes(atomic.LoadInt64(&s.BytesAfter)),
		FormatBytes(saved),
		percent,
		duration,
		fps)
}

// GetFileTypeBreakdown returns a formatted breakdown of file types processed.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for fileType := range s.FileTypeStats {
		types = append(types, fileType)
	}
	sort.Strings(types)

	result := "File Type Breakdown:\n"
	for _, fileType := range types {
		result += fmt.Sprintf("  %s: %d\n", fileType, s.FileTypeStats[fileType])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// Snapshot returns the counters as a plain map, for JSON responses.
func (s *Statistics) Snapshot() map[string]int64 {
	return map[string]int64{
		"found":       atomic.LoadInt64(&s.TotalFilesFound),
		"processed":   atomic.LoadInt64(&s.TotalFilesProcessed),
		"converted":   atomic.LoadInt64(&s.FilesConverted),
		"unchanged":   atomic.LoadInt64(&s.FilesUnchanged),
		"skipped":     atomic.LoadInt64(&s.FilesSkipped),
		"unsupported": atomic.LoadInt64(&s.FilesUnsupported),
		"failed":      atomic.LoadInt64(&s.FilesFailed),
		"errors":      atomic.LoadInt64(&s.FilesWithErrors),
		"bytes_saved": s.BytesSaved(),
	}
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
