package optimizer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"ioptimizer-go/internal/compressor"
	apperrors "ioptimizer-go/internal/errors"
	"ioptimizer-go/internal/logger"
)

func newTestReplacer(c compressor.Compressor) *Replacer {
	return NewReplacer(c, logger.Discard(), ".bkp", false)
}

func candidateFor(t *testing.T, path string) Candidate {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	return NewCandidate(path, info.Size())
}

func TestProcessOneWithBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	original := writeFile(t, path, 10000)

	r := newTestReplacer(&fakeCompressor{})
	line := r.ProcessOne(context.Background(), candidateFor(t, path), false, true)

	if line.Kind != LineConverted {
		t.Fatalf("expected converted, got %s (%v)", line.Kind, line.Err)
	}
	if !bytes.Equal(readFile(t, path+".bkp"), original) {
		t.Fatalf("backup must be byte-identical to the original")
	}
	if got := readFile(t, path); !bytes.Equal(got, original[:5000]) {
		t.Fatalf("original should hold the compressed bytes, got %d bytes", len(got))
	}
	if line.OriginalSize != 10000 || line.CompressedSize != 5000 {
		t.Fatalf("unexpected sizes: %d -> %d", line.OriginalSize, line.CompressedSize)
	}
	if line.BackupPath != path+".bkp" {
		t.Fatalf("unexpected backup path %q", line.BackupPath)
	}
	assertMissing(t, path+".tmp")
}

func TestProcessOneWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	original := writeFile(t, path, 400)

	r := newTestReplacer(&fakeCompressor{})
	line := r.ProcessOne(context.Background(), candidateFor(t, path), true, false)

	if line.Kind != LineConverted {
		t.Fatalf("expected converted, got %s", line.Kind)
	}
	assertMissing(t, path+".bkp")
	assertMissing(t, path+".tmp")
	if !bytes.Equal(readFile(t, path), original[:200]) {
		t.Fatalf("original should hold the compressed bytes")
	}
}

func TestProcessOneKeepsPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeFile(t, path, 100)
	if err := os.Chmod(path, 0o640); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	r := newTestReplacer(&fakeCompressor{})
	if line := r.ProcessOne(context.Background(), candidateFor(t, path), false, false); line.Kind != LineConverted {
		t.Fatalf("expected converted, got %s", line.Kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("expected mode 0640, got %v", info.Mode().Perm())
	}
}

func TestProcessOneWritesThroughSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real", "a.png")
	original := writeFile(t, target, 1000)
	link := filepath.Join(dir, "a.png")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	r := newTestReplacer(&fakeCompressor{})
	line := r.ProcessOne(context.Background(), candidateFor(t, link), false, true)
	if line.Kind != LineConverted {
		t.Fatalf("expected converted, got %s (%v)", line.Kind, line.Err)
	}

	info, err := os.Lstat(link)
	if err != nil {
		t.Fatalf("lstat: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("link must still be a symlink")
	}
	if got := readFile(t, target); !bytes.Equal(got, original[:500]) {
		t.Fatalf("link target should hold the compressed bytes, got %d bytes", len(got))
	}
	if !bytes.Equal(readFile(t, link+".bkp"), original) {
		t.Fatalf("backup must hold the original contents")
	}
}

func TestProcessOneKeepsHardlinksShared(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "h1.png")
	second := filepath.Join(dir, "h2.png")
	original := writeFile(t, first, 1000)
	if err := os.Link(first, second); err != nil {
		t.Skipf("hardlinks not supported: %v", err)
	}

	r := newTestReplacer(&fakeCompressor{})
	if line := r.ProcessOne(context.Background(), candidateFor(t, first), false, false); line.Kind != LineConverted {
		t.Fatalf("expected converted, got %s (%v)", line.Kind, line.Err)
	}

	if got := readFile(t, first); !bytes.Equal(got, original[:500]) {
		t.Fatalf("h1 should hold the compressed bytes, got %d bytes", len(got))
	}
	if got := readFile(t, second); !bytes.Equal(got, original[:500]) {
		t.Fatalf("h2 shares the inode and should see the compressed bytes, got %d bytes", len(got))
	}
	a, _ := os.Stat(first)
	b, _ := os.Stat(second)
	if !os.SameFile(a, b) {
		t.Fatalf("h1 and h2 must remain the same file")
	}
}

func TestProcessOneUnsupportedLeavesFileAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.txt")
	original := writeFile(t, path, 64)

	fake := &fakeCompressor{}
	r := newTestReplacer(fake)
	line := r.ProcessOne(context.Background(), candidateFor(t, path), false, true)

	if line.Kind != LineUnsupported {
		t.Fatalf("expected unsupported, got %s", line.Kind)
	}
	if !apperrors.Is(line.Err, apperrors.Unsupported) {
		t.Fatalf("expected unsupported error kind, got %v", line.Err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("compressor must not be called for unsupported files")
	}
	if !bytes.Equal(readFile(t, path), original) {
		t.Fatalf("unsupported file must be untouched")
	}
	assertMissing(t, path+".bkp")
	assertMissing(t, path+".tmp")
}

func TestProcessOneMissingResultIsReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	original := writeFile(t, path, 100)

	r := newTestReplacer(&fakeCompressor{noResult: true})
	line := r.ProcessOne(context.Background(), candidateFor(t, path), false, true)

	if line.Kind != LineFailed {
		t.Fatalf("expected failed, got %s", line.Kind)
	}
	if !apperrors.Is(line.Err, apperrors.ConversionFailure) {
		t.Fatalf("expected conversion failure, got %v", line.Err)
	}
	if !bytes.Equal(readFile(t, path), original) {
		t.Fatalf("original must be untouched")
	}
	assertMissing(t, path+".bkp")
}

func TestProcessOneCompressorStatuses(t *testing.T) {
	tests := []struct {
		status compressor.Status
		want   LineKind
	}{
		{compressor.StatusFailed, LineFailed},
		{compressor.StatusUnchanged, LineUnchanged},
		{compressor.StatusSkipped, LineSkipped},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "a.png")
			original := writeFile(t, path, 100)

			r := newTestReplacer(&fakeCompressor{status: tt.status})
			line := r.ProcessOne(context.Background(), candidateFor(t, path), false, true)
			if line.Kind != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, line.Kind)
			}
			if !bytes.Equal(readFile(t, path), original) {
				t.Fatalf("original must be untouched")
			}
			assertMissing(t, path+".bkp")
		})
	}
}

func TestProcessOneRefusesExistingBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	original := writeFile(t, path, 100)
	oldBackup := []byte("older backup")
	if err := os.WriteFile(path+".bkp", oldBackup, 0o644); err != nil {
		t.Fatalf("write backup: %v", err)
	}

	r := newTestReplacer(&fakeCompressor{})
	line := r.ProcessOne(context.Background(), candidateFor(t, path), false, true)

	if line.Kind != LineError {
		t.Fatalf("expected error line, got %s", line.Kind)
	}
	if !apperrors.Is(line.Err, apperrors.BackupExists) {
		t.Fatalf("expected backup exists, got %v", line.Err)
	}
	if !bytes.Equal(readFile(t, path), original) {
		t.Fatalf("original must be untouched when backup fails")
	}
	if !bytes.Equal(readFile(t, path+".bkp"), oldBackup) {
		t.Fatalf("existing backup must not be modified")
	}
	assertMissing(t, path+".tmp")
}

func TestProcessOneOverwritesBackupWhenAllowed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	original := writeFile(t, path, 100)
	if err := os.WriteFile(path+".bkp", []byte("stale"), 0o644); err != nil {
		t.Fatalf("write backup: %v", err)
	}

	r := NewReplacer(&fakeCompressor{}, logger.Discard(), ".bkp", true)
	line := r.ProcessOne(context.Background(), candidateFor(t, path), false, true)

	if line.Kind != LineConverted {
		t.Fatalf("expected converted, got %s (%v)", line.Kind, line.Err)
	}
	if !bytes.Equal(readFile(t, path+".bkp"), original) {
		t.Fatalf("backup should be refreshed from the original")
	}
}

func TestLineString(t *testing.T) {
	line := Line{
		Kind:           LineConverted,
		Path:           "a.png",
		ResultPath:     "a.png.tmp",
		BackupPath:     "a.png.bkp",
		OriginalSize:   2048,
		CompressedSize: 1024,
	}
	want := "Converted a.png: 2.0 KB -> 1.0 KB (50.0% saved), result a.png.tmp, backup a.png.bkp"
	if got := line.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if got := (Line{Kind: LineUnsupported, Path: "b.txt"}).String(); got != "Not supported format: b.txt" {
		t.Fatalf("unexpected unsupported line %q", got)
	}
	if got := (Line{Kind: LineUnchanged, Path: "c.png", Message: "not smaller"}).String(); got != "Unchanged c.png: not smaller" {
		t.Fatalf("unexpected unchanged line %q", got)
	}
}
