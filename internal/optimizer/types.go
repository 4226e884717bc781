package optimizer

import (
	"fmt"
	"path/filepath"
	"strings"

	"ioptimizer-go/internal/compressor"
	apperrors "ioptimizer-go/internal/errors"
	"ioptimizer-go/internal/statistics"
)

// Options is one invocation's input, already parsed from flags.
type Options struct {
	Input           string
	Filter          string
	Recursive       bool
	Lossy           bool
	Backup          bool
	OverwriteBackup bool
}

// Validate checks what can be checked without touching the filesystem.
// The filter requirement depends on the resolved target and is checked by Run.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Input) == "" {
		return apperrors.New(apperrors.Validation, "options", "",
			"you must specify a file or directory either by -i or directly after the command")
	}
	return nil
}

// TargetKind tells whether the input names one file or a directory to search.
type TargetKind int

const (
	TargetFile TargetKind = iota
	TargetDirectory
)

func (k TargetKind) String() string {
	if k == TargetDirectory {
		return "directory"
	}
	return "file"
}

// Target is a resolved input path.
type Target struct {
	Path string
	Kind TargetKind
	Size int64
}

// Candidate is a file selected for possible conversion.
type Candidate struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Ext  string `json:"ext"`
	Size int64  `json:"size"`
}

func NewCandidate(path string, size int64) Candidate {
	name := filepath.Base(path)
	return Candidate{
		Path: path,
		Name: name,
		Ext:  strings.ToLower(filepath.Ext(name)),
		Size: size,
	}
}

// LineKind classifies a per-file report line.
type LineKind string

const (
	LineConverted   LineKind = "converted"
	LineUnsupported LineKind = "unsupported"
	LineFailed      LineKind = "failed"
	LineUnchanged   LineKind = "unchanged"
	LineSkipped     LineKind = "skipped"
	LineError       LineKind = "error"
)

// Line is the report entry for one candidate.
type Line struct {
	Kind           LineKind `json:"kind"`
	Path           string   `json:"path"`
	ResultPath     string   `json:"result_path,omitempty"`
	BackupPath     string   `json:"backup_path,omitempty"`
	OriginalSize   int64    `json:"original_size"`
	CompressedSize int64    `json:"compressed_size"`
	Message        string   `json:"message,omitempty"`
	Err            error    `json:"-"`
}

func (l Line) String() string {
	switch l.Kind {
	case LineConverted:
		saved := compressor.Outcome{OriginalSize: l.OriginalSize, CompressedSize: l.CompressedSize}.PercentageSaved()
		s := fmt.Sprintf("Converted %s: %s -> %s (%.1f%% saved), result %s",
			l.Path,
			statistics.FormatBytes(l.OriginalSize),
			statistics.FormatBytes(l.CompressedSize),
			saved,
			l.ResultPath)
		if l.BackupPath != "" {
			s += ", backup " + l.BackupPath
		}
		return s
	case LineUnsupported:
		return fmt.Sprintf("Not supported format: %s", l.Path)
	case LineError:
		return fmt.Sprintf("Error %s: %s", l.Path, apperrors.UserMessage(l.Err))
	default:
		label := strings.ToUpper(string(l.Kind[:1])) + string(l.Kind[1:])
		return fmt.Sprintf("%s %s: %s", label, l.Path, l.Message)
	}
}

// Report accumulates the lines of one batch.
type Report struct {
	Target Target
	Lines  []Line
	Stats  *statistics.Statistics
}

func NewReport() *Report {
	return &Report{Stats: statistics.NewStatistics()}
}

// Add appends a line and updates the counters.
func (r *Report) Add(line Line) {
	r.Lines = append(r.Lines, line)
	r.Stats.IncrementFilesProcessed()

	ext := strings.ToUpper(strings.TrimPrefix(filepath.Ext(line.Path), "."))
	if ext != "" {
		r.Stats.IncrementFileType(ext)
	}

	switch line.Kind {
	case LineConverted:
		r.Stats.AddConverted(line.OriginalSize, line.CompressedSize)
		if line.BackupPath != "" {
			r.Stats.IncrementBackupsCreated()
		}
	case LineUnsupported:
		r.Stats.IncrementFilesUnsupported()
	case LineUnchanged:
		r.Stats.IncrementFilesUnchanged()
	case LineSkipped:
		r.Stats.IncrementFilesSkipped()
	case LineFailed:
		r.Stats.IncrementFilesFailed()
		r.Stats.AddError(line.Path, "compress", line.Message)
	case LineError:
		r.Stats.IncrementFilesWithErrors()
		r.Stats.AddError(line.Path, string(apperrors.KindOf(line.Err)), errString(line.Err))
	}
}

// Converted returns the lines of files that were replaced.
func (r *Report) Converted() []Line {
	var out []Line
	for _, l := range r.Lines {
		if l.Kind == LineConverted {
			out = append(out, l)
		}
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
