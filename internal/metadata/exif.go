package metadata

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFReader reads EXIF data in-process with goexif and falls back to the
// exiftool binary for formats goexif cannot decode.
type EXIFReader struct {
	logger logrus.FieldLogger
}

// NewEXIFReader returns a new EXIFReader.
func NewEXIFReader(logger logrus.FieldLogger) *EXIFReader {
	return &EXIFReader{logger: logger}
}

// Software returns the EXIF Software tag of the file.
func (r *EXIFReader) Software(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return "", fmt.Errorf("failed to decode EXIF: %w", err)
	}

	tag, err := x.Get(exif.Software)
	if err != nil {
		return "", fmt.Errorf("no Software tag: %w", err)
	}
	return tag.StringVal()
}

// IsOptimized reports whether the Software tag carries OptimizedMark.
func (r *EXIFReader) IsOptimized(filePath string) bool {
	sw, err := r.Software(filePath)
	if err == nil {
		return strings.Contains(sw, OptimizedMark)
	}

	fields, err := r.Dump(filePath)
	if err != nil {
		r.logger.Debugf("No metadata for %s: %v", filePath, err)
		return false
	}
	if s, ok := fields["Software"].(string); ok {
		return strings.Contains(s, OptimizedMark)
	}
	return false
}

// Dump extracts all metadata with exiftool. It fails when the binary is missing.
func (r *EXIFReader) Dump(filePath string) (map[string]interface{}, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(filePath)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", filePath)
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}
	return files[0].Fields, nil
}

// CopyAndMark copies the EXIF block from src to dst and stamps the Software tag.
func CopyAndMark(src, dst string) error {
	cmdCopy := exec.Command("exiftool", "-TagsFromFile", src, "-overwrite_original", dst)
	if err := cmdCopy.Run(); err != nil {
		return fmt.Errorf("exiftool copy failed: %w", err)
	}
	cmdSet := exec.Command("exiftool", "-overwrite_original", "-Software="+OptimizedMark, dst)
	if err := cmdSet.Run(); err != nil {
		return fmt.Errorf("exiftool set Software failed: %w", err)
	}
	return nil
}
