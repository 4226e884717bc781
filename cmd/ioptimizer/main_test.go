package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "ioptimizer-go/internal/errors"
	"ioptimizer-go/internal/optimizer"

	"github.com/spf13/pflag"
)

// resetFlags restores every flag of the command tree to its default, before
// and after the test, since cobra keeps parsed values in package state.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		for _, fs := range []*pflag.FlagSet{rootCmd.Flags(), rootCmd.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}
	reset()
	t.Cleanup(reset)
}

// isolate runs the test in an empty working directory with HOME and the user
// cache directory pointing somewhere else, and returns the working directory.
func isolate(t *testing.T) string {
	t.Helper()
	resetFlags(t)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, ".cache"))
	t.Setenv("LocalAppData", filepath.Join(home, "AppData"))

	work := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(work); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return work
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(append([]string{}, args...))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTree(t *testing.T, files ...string) {
	t.Helper()
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(f, []byte("text"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRootWithoutArgumentsShowsHelp(t *testing.T) {
	work := isolate(t)

	stdout, _, err := execute(t)
	if err != nil {
		t.Fatalf("help must exit cleanly: %v", err)
	}
	if !strings.Contains(stdout, "Usage:") || !strings.Contains(stdout, "ioptimizer [input]") {
		t.Fatalf("expected help text, got %q", stdout)
	}
	if names := listDir(t, work); len(names) != 0 {
		t.Fatalf("help must not create files, found %v", names)
	}
}

func TestRootMissingFileCreatesNothing(t *testing.T) {
	work := isolate(t)

	_, _, err := execute(t, "missing.png", "-b")
	if !apperrors.Is(err, apperrors.NotFound) || apperrors.ExitCode(err) != apperrors.ExitFilesystem {
		t.Fatalf("expected not found with exit code 2, got %v", err)
	}
	if names := listDir(t, work); len(names) != 0 {
		t.Fatalf("no files may be created, found %v", names)
	}
}

func TestRootParsesFlags(t *testing.T) {
	isolate(t)
	writeTree(t, filepath.Join("imgs", "b.txt"), filepath.Join("imgs", "sub", "c.txt"))

	stdout, _, err := execute(t, "-i", "imgs", "-f", "*.txt", "-r", "-l", "-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Not supported format: " + filepath.Join("imgs", "b.txt"),
		"Not supported format: " + filepath.Join("imgs", "sub", "c.txt"),
		"IOptimizer Summary",
		"File Type Breakdown",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
	if !lossy || !backup || !recursive {
		t.Fatalf("short flags not parsed: lossy=%v backup=%v recursive=%v", lossy, backup, recursive)
	}
}

func TestRootInputFlagBeatsPositional(t *testing.T) {
	isolate(t)
	writeTree(t, filepath.Join("imgs", "b.txt"), filepath.Join("imgs", "sub", "c.txt"))

	stdout, _, err := execute(t, "elsewhere", "--input", "imgs", "--filter", "*.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, filepath.Join("imgs", "b.txt")) {
		t.Fatalf("expected imgs to be processed:\n%s", stdout)
	}
	if strings.Contains(stdout, "c.txt") {
		t.Fatalf("subdirectories must not be visited without -r:\n%s", stdout)
	}
}

func TestRootDirectoryWithoutFilter(t *testing.T) {
	isolate(t)
	writeTree(t, filepath.Join("imgs", "a.png"))

	_, _, err := execute(t, "imgs")
	if apperrors.ExitCode(err) != apperrors.ExitValidation {
		t.Fatalf("expected exit code 1, got %v", err)
	}
}

func TestRootUsageErrorsAreValidation(t *testing.T) {
	for _, args := range [][]string{
		{"a.png", "b.png"},
		{"a.png", "--no-such-flag"},
	} {
		isolate(t)
		_, _, err := execute(t, args...)
		if apperrors.ExitCode(err) != apperrors.ExitValidation {
			t.Fatalf("%v: expected exit code 1, got %v", args, err)
		}
	}
}

func TestBuildOptionsInputPrecedence(t *testing.T) {
	resetFlags(t)

	if got := buildOptions([]string{"pos"}).Input; got != "pos" {
		t.Fatalf("positional input ignored, got %q", got)
	}

	input = "flag"
	if got := buildOptions([]string{"pos"}).Input; got != "flag" {
		t.Fatalf("-i should take precedence, got %q", got)
	}
	if got := buildOptions(nil).Input; got != "flag" {
		t.Fatalf("-i alone should be accepted, got %q", got)
	}
}

func TestBatchErrorExitCode(t *testing.T) {
	report := optimizer.NewReport()
	if err := batchError(report); err != nil {
		t.Fatalf("clean batch must succeed: %v", err)
	}

	report.Add(optimizer.Line{Kind: optimizer.LineFailed, Path: "a.png", Message: "decode"})
	err := batchError(report)
	if apperrors.ExitCode(err) != apperrors.ExitFilesystem {
		t.Fatalf("failed files must exit 2, got %d", apperrors.ExitCode(err))
	}
}

func TestRunOptimizeZeroMatches(t *testing.T) {
	isolate(t)
	writeTree(t, filepath.Join("imgs", "a.txt"))
	filter = "*.png"

	var stdout, stderr bytes.Buffer
	if err := runOptimize(context.Background(), &stdout, &stderr, []string{"imgs"}); err != nil {
		t.Fatalf("zero-file batch must succeed: %v", err)
	}
	if !strings.Contains(stdout.String(), "IOptimizer Summary") {
		t.Fatalf("expected summary, got %q", stdout.String())
	}
}
