package optimizer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ioptimizer-go/internal/compressor"
)

// fakeCompressor accepts .png and .jpg and writes the first half of the
// original to <path>.tmp.
type fakeCompressor struct {
	status   compressor.Status
	noResult bool
	calls    []string
}

func (f *fakeCompressor) IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".png" || ext == ".jpg"
}

func (f *fakeCompressor) Compress(ctx context.Context, path string, lossy bool) compressor.Outcome {
	f.calls = append(f.calls, path)
	out := compressor.Outcome{OriginalPath: path, Supported: true}

	data, err := os.ReadFile(path)
	if err != nil {
		out.Status = compressor.StatusFailed
		out.Err = err
		return out
	}
	out.OriginalSize = int64(len(data))

	if f.status != "" && f.status != compressor.StatusCompleted {
		out.Status = f.status
		out.Message = "fake " + string(f.status)
		return out
	}

	out.ResultPath = path + ".tmp"
	out.Status = compressor.StatusCompleted
	compressed := data[:len(data)/2]
	out.CompressedSize = int64(len(compressed))
	if f.noResult {
		return out
	}
	if err := os.WriteFile(out.ResultPath, compressed, 0o600); err != nil {
		out.Status = compressor.StatusFailed
		out.Err = err
	}
	return out
}

func writeFile(t *testing.T, path string, size int) []byte {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := bytes.Repeat([]byte{'x', 'y', 'z', 'w'}, size/4+1)[:size]
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return data
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be absent, stat err=%v", path, err)
	}
}

// chdir moves into dir for the test; inputs with a leading "/" are read relative to it.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
