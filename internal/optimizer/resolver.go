package optimizer

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	apperrors "ioptimizer-go/internal/errors"
)

// NormalizeInput strips a single leading path separator, so "/photos" is read
// relative to the working directory.
func NormalizeInput(raw string) string {
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, string(os.PathSeparator)) {
		return raw[1:]
	}
	return raw
}

// Resolve normalizes raw and classifies it as a file or a directory.
func Resolve(raw string) (Target, error) {
	path := NormalizeInput(raw)
	if path == "" {
		return Target{}, apperrors.New(apperrors.Validation, "resolve", raw, "input path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Target{}, apperrors.Wrap(apperrors.NotFound, "resolve", path, err)
		}
		return Target{}, apperrors.Wrap(apperrors.IOFailure, "resolve", path, err)
	}

	if info.IsDir() {
		return Target{Path: path, Kind: TargetDirectory}, nil
	}
	return Target{Path: path, Kind: TargetFile, Size: info.Size()}, nil
}
