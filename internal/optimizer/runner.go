package optimizer

import (
	"context"

	apperrors "ioptimizer-go/internal/errors"
	"ioptimizer-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// LineHookFunc receives every report line as soon as it is produced.
type LineHookFunc func(line Line)

// Runner drives one batch: resolve, enumerate, then process files in order.
type Runner struct {
	replacer *Replacer
	logger   logrus.FieldLogger
	lineHook LineHookFunc
}

// NewRunner returns a Runner.
func NewRunner(replacer *Replacer, log logrus.FieldLogger) *Runner {
	return NewRunnerWithLineHook(replacer, log, nil)
}

// NewRunnerWithLineHook lets callers observe lines while the batch runs (the web UI streams them).
func NewRunnerWithLineHook(replacer *Replacer, log logrus.FieldLogger, hook LineHookFunc) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{
		replacer: replacer,
		logger:   log,
		lineHook: hook,
	}
}

// Run processes every candidate named by opts. The returned error is non-nil
// only for failures that stop the batch before or between files: invalid
// options, a missing input, an unreadable directory or a bad filter, or a
// cancelled context. Per-file problems are lines in the report.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	report := NewReport()
	return report, r.RunInto(ctx, opts, report)
}

// RunInto is Run with a caller-owned report. Its statistics are updated as
// each file finishes, so a caller holding report.Stats can watch progress.
func (r *Runner) RunInto(ctx context.Context, opts Options, report *Report) error {
	defer report.Stats.Finalize()

	candidates, target, err := r.collect(opts)
	if err != nil {
		return err
	}
	report.Target = target
	report.Stats.SetFilesFound(len(candidates))

	log := logger.WithOperation(r.logger, "run")
	log.WithFields(logrus.Fields{
		"input":     target.Path,
		"kind":      target.Kind.String(),
		"files":     len(candidates),
		"lossy":     opts.Lossy,
		"backup":    opts.Backup,
		"recursive": opts.Recursive,
	}).Info("Starting batch")

	replacer := *r.replacer
	replacer.OverwriteBackup = replacer.OverwriteBackup || opts.OverwriteBackup

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			log.Warnf("Batch cancelled after %d of %d files", len(report.Lines), len(candidates))
			return apperrors.Wrap(apperrors.Internal, "run", target.Path, err)
		}

		line := replacer.ProcessOne(ctx, c, opts.Lossy, opts.Backup)
		report.Add(line)
		if r.lineHook != nil {
			r.lineHook(line)
		}
	}

	log.WithField("processed", len(report.Lines)).Info("Batch completed")
	return nil
}

// ScanEntry is a candidate plus whether the compressor would accept it.
type ScanEntry struct {
	Candidate
	Supported bool `json:"supported"`
}

// Scan resolves and enumerates like Run but only classifies the candidates.
func (r *Runner) Scan(opts Options) ([]ScanEntry, error) {
	candidates, _, err := r.collect(opts)
	if err != nil {
		return nil, err
	}
	entries := make([]ScanEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, ScanEntry{
			Candidate: c,
			Supported: r.replacer.Compressor.IsSupported(c.Path),
		})
	}
	return entries, nil
}

// collect validates opts and turns the input into an ordered candidate list
// without touching any file content.
func (r *Runner) collect(opts Options) ([]Candidate, Target, error) {
	if err := opts.Validate(); err != nil {
		return nil, Target{}, err
	}

	target, err := Resolve(opts.Input)
	if err != nil {
		return nil, Target{}, err
	}

	if target.Kind == TargetFile {
		return []Candidate{NewCandidate(target.Path, target.Size)}, target, nil
	}

	candidates, err := Enumerate(target.Path, opts.Filter, opts.Recursive)
	if err != nil {
		return nil, target, err
	}
	return candidates, target, nil
}
