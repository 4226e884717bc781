package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"ioptimizer-go/internal/compressor"
	"ioptimizer-go/internal/config"
	apperrors "ioptimizer-go/internal/errors"
	"ioptimizer-go/internal/logger"
	"ioptimizer-go/internal/metadata"
	"ioptimizer-go/internal/optimizer"
	"ioptimizer-go/internal/statistics"
	"ioptimizer-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile         string
	input           string
	filter          string
	recursive       bool
	lossy           bool
	backup          bool
	overwriteBackup bool
	verbose         bool
	quiet           bool
	port            int
)

// rootCmd compresses images in place.
var rootCmd = &cobra.Command{
	Use:   "ioptimizer [input]",
	Short: "Compress images in place, optionally keeping a backup",
	Long: `IOptimizer compresses a single image, or every image in a directory that
matches a filter, and replaces each original with its smaller version.

Examples:
  ioptimizer photo.jpg -b
  ioptimizer -i photos -f "*.png" -r -l
  ioptimizer photos -f "*.jpg" --backup --overwrite-backup

Exit codes:
  0  success, including batches with no matching files
  1  invalid input
  2  missing path, unreadable directory, or a file that failed`,
	Args:          maxOneArg,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			return cmd.Help()
		}
		return runOptimize(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
	},
}

// scanCmd lists what a run would touch without compressing anything.
var scanCmd = &cobra.Command{
	Use:   "scan [input]",
	Short: "List matching files and whether they can be compressed",
	Long: `Resolves the input and applies the filter exactly like a normal run, then
prints each candidate with its size and whether its format is supported.
No file is modified.`,
	Args: maxOneArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.OutOrStdout(), args)
	},
}

// inspectCmd shows how a single file would be treated.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show format support, optimization mark and metadata of a file",
	Long: `Shows whether the file is a supported format, whether it already carries the
IOptimizer mark in its EXIF Software tag, and the metadata exiftool can read.`,
	Args: exactlyOneArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.OutOrStdout(), args[0])
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts an HTTP server exposing scan, optimize and report endpoints, plus a
websocket at /ws streaming report lines while a batch runs. Only one batch
runs at a time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging on stderr")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "only print failures")
	rootCmd.PersistentFlags().StringVarP(&input, "input", "i", "", "file or directory to process (takes precedence over the positional argument)")
	rootCmd.PersistentFlags().StringVarP(&filter, "filter", "f", "", "glob matched against file names, required for directories (e.g. \"*.png\")")
	rootCmd.PersistentFlags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")

	rootCmd.Flags().BoolVarP(&lossy, "lossy", "l", false, "use lossy compression")
	rootCmd.Flags().BoolVarP(&backup, "backup", "b", false, "keep the original as <file>.bkp")
	rootCmd.Flags().BoolVar(&overwriteBackup, "overwrite-backup", false, "replace an existing backup instead of skipping the file")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperrors.Wrap(apperrors.Validation, "flags", "", err)
	})

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

func maxOneArg(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return apperrors.New(apperrors.Validation, "args", "",
			fmt.Sprintf("expected at most one input, got %d", len(args)))
	}
	return nil
}

func exactlyOneArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return apperrors.New(apperrors.Validation, "args", "",
			fmt.Sprintf("expected exactly one file, got %d", len(args)))
	}
	return nil
}

// buildOptions merges flags and the positional argument. An explicit -i wins.
func buildOptions(args []string) optimizer.Options {
	in := input
	if in == "" && len(args) > 0 {
		in = args[0]
	}
	return optimizer.Options{
		Input:           in,
		Filter:          filter,
		Recursive:       recursive,
		Lossy:           lossy,
		Backup:          backup,
		OverwriteBackup: overwriteBackup,
	}
}

// runOptimize executes one batch and prints its report.
func runOptimize(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	opts := buildOptions(args)

	hook := func(line optimizer.Line) {
		switch line.Kind {
		case optimizer.LineFailed, optimizer.LineError:
			fmt.Fprintln(stderr, line.String())
		default:
			if !quiet {
				fmt.Fprintln(stdout, line.String())
			}
		}
	}

	runner := optimizer.NewRunnerWithLineHook(newReplacer(cfg, log), log, hook)
	report, err := runner.Run(ctx, opts)
	if err != nil {
		log.WithError(err).Error("Batch aborted")
		return err
	}

	if !quiet {
		fmt.Fprintln(stdout, "\n"+report.Stats.GetSummary())
		fmt.Fprintln(stdout, "\n"+report.Stats.GetFileTypeBreakdown())
	}
	if report.Stats.HasFailures() {
		fmt.Fprintln(stderr, "\n"+report.Stats.GetErrorSummary())
	}

	return batchError(report)
}

// batchError turns per-file failures into a non-zero exit.
func batchError(report *optimizer.Report) error {
	if !report.Stats.HasFailures() {
		return nil
	}
	failed := report.Stats.FilesFailed + report.Stats.FilesWithErrors
	return apperrors.New(apperrors.IOFailure, "run", report.Target.Path,
		fmt.Sprintf("%d file(s) could not be optimized", failed))
}

// runScan prints the candidates of a batch without processing them.
func runScan(stdout io.Writer, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	runner := optimizer.NewRunner(newReplacer(cfg, log), log)

	entries, err := runner.Scan(buildOptions(args))
	if err != nil {
		return err
	}

	var supported int
	var total int64
	for _, e := range entries {
		status := "unsupported"
		if e.Supported {
			status = "supported"
			supported++
			total += e.Size
		}
		fmt.Fprintf(stdout, "%-12s %10s  %s\n", status, statistics.FormatBytes(e.Size), e.Path)
	}

	if !quiet {
		fmt.Fprintf(stdout, "\n%d file(s) matched, %d supported (%s)\n",
			len(entries), supported, statistics.FormatBytes(total))
	}
	return nil
}

// runInspect prints what the optimizer knows about a single file.
func runInspect(stdout io.Writer, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	target, err := optimizer.Resolve(path)
	if err != nil {
		return err
	}
	if target.Kind != optimizer.TargetFile {
		return apperrors.New(apperrors.Validation, "inspect", target.Path, "inspect needs a file, not a directory")
	}

	log := setupLogger(cfg)
	reader := metadata.NewEXIFReader(log)
	comp := compressor.NewDefaultCompressor(cfg, reader, log)

	fmt.Fprintf(stdout, "File:      %s\n", target.Path)
	fmt.Fprintf(stdout, "Size:      %s\n", statistics.FormatBytes(target.Size))
	fmt.Fprintf(stdout, "Supported: %t\n", comp.IsSupported(target.Path))
	fmt.Fprintf(stdout, "Optimized: %t\n", reader.IsOptimized(target.Path))

	if sw, err := reader.Software(target.Path); err == nil {
		fmt.Fprintf(stdout, "Software:  %s\n", sw)
	}

	fields, err := reader.Dump(target.Path)
	if err != nil {
		fmt.Fprintf(stdout, "Metadata:  unavailable (%v)\n", err)
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(stdout, "Metadata:")
	for _, k := range keys {
		fmt.Fprintf(stdout, "  %-28s %v\n", k, fields[k])
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	server := web.NewServer(log, newReplacer(cfg, log))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("IOptimizer API listening on http://localhost:%d\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errCh:
		return apperrors.Wrap(apperrors.IOFailure, "serve", fmt.Sprintf(":%d", port), err)
	case <-ctx.Done():
	}
	fmt.Println("\nShutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// loadConfig reads the config file and environment. Bad configuration is a usage error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, "config", cfgFile, err)
	}
	return cfg, nil
}

func newReplacer(cfg *config.Config, log *logrus.Logger) *optimizer.Replacer {
	comp := compressor.NewDefaultCompressor(cfg, metadata.NewEXIFReader(log), log)
	return optimizer.NewReplacer(comp, log, cfg.Processing.BackupSuffix, cfg.Processing.OverwriteBackups)
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    verbose,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.WarnLevel)
		log.Warnf("Falling back to stderr logging: %v", err)
	}

	return log
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		msg := apperrors.UserMessage(err)
		if !strings.HasPrefix(msg, "Error") {
			msg = "Error: " + msg
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(apperrors.ExitCode(err))
	}
}
