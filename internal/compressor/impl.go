package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ioptimizer-go/internal/config"
	"ioptimizer-go/internal/metadata"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// DefaultCompressor re-encodes images with imaging and keeps the result only
// when it is smaller than the original.
type DefaultCompressor struct {
	cfg        config.CompressionConfig
	settings   *config.Config
	tempSuffix string
	skipMarked bool
	markResult bool
	meta       metadata.Reader
	logger     logrus.FieldLogger
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(cfg *config.Config, meta metadata.Reader, logger logrus.FieldLogger) *DefaultCompressor {
	return &DefaultCompressor{
		cfg:        cfg.Compression,
		settings:   cfg,
		tempSuffix: cfg.Processing.TempSuffix,
		skipMarked: cfg.Processing.SkipOptimized,
		markResult: cfg.Processing.MarkOptimized,
		meta:       meta,
		logger:     logger,
	}
}

// IsSupported reports whether the extension is configured and imaging can encode it.
func (c *DefaultCompressor) IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	if !c.settings.IsSupportedExtension(ext) {
		return false
	}
	_, err := imaging.FormatFromExtension(ext)
	return err == nil
}

// Compress encodes path into a new temporary file next to it, named
// <name>.<random><tempSuffix>. Existing files are never reused.
func (c *DefaultCompressor) Compress(ctx context.Context, path string, lossy bool) Outcome {
	res := Outcome{
		OriginalPath: path,
		StartedAt:    time.Now(),
	}

	fail := func(msg string, err error) Outcome {
		res.Status = StatusFailed
		res.Message = fmt.Sprintf("%s: %v", msg, err)
		res.Err = err
		res.FinishedAt = time.Now()
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail("cancelled", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail("stat error", err)
	}
	res.OriginalSize = info.Size()

	if !c.IsSupported(path) {
		res.Status = StatusFailed
		res.Message = "format not supported"
		res.FinishedAt = time.Now()
		return res
	}
	res.Supported = true

	ext := strings.ToLower(filepath.Ext(path))
	isJPEG := ext == ".jpg" || ext == ".jpeg"

	if isJPEG && c.skipMarked && c.meta != nil && c.meta.IsOptimized(path) {
		res.Status = StatusSkipped
		res.Message = "already optimized"
		res.FinishedAt = time.Now()
		return res
	}

	img, err := imaging.Open(path)
	if err != nil {
		return fail("open error", err)
	}
	if lossy {
		img = c.downscale(img)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return fail("format error", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, c.encodeOptions(lossy)...); err != nil {
		return fail("encode error", err)
	}

	tmpPath, err := writeTemp(path, c.tempSuffix, buf.Bytes())
	if err != nil {
		return fail("write tmp file error", err)
	}

	if isJPEG && c.markResult {
		if err := metadata.CopyAndMark(path, tmpPath); err != nil {
			res.Message = fmt.Sprintf("warning: exif not copied/marked: %v", err)
			c.logger.Debugf("EXIF mark skipped for %s: %v", path, err)
		}
	}

	compInfo, err := os.Stat(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fail("stat compressed error", err)
	}
	res.CompressedSize = compInfo.Size()

	if res.CompressedSize >= res.OriginalSize {
		_ = os.Remove(tmpPath)
		res.Status = StatusUnchanged
		res.Message = "compressed file not smaller than original"
		res.FinishedAt = time.Now()
		return res
	}

	res.ResultPath = tmpPath
	res.Status = StatusCompleted
	if res.Message == "" {
		res.Message = "image compressed"
	}
	res.FinishedAt = time.Now()
	return res
}

// writeTemp creates a fresh file beside path and writes data to it.
func writeTemp(path, suffix string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+suffix)
	if err != nil {
		return "", err
	}
	name := f.Name()

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (c *DefaultCompressor) encodeOptions(lossy bool) []imaging.EncodeOption {
	quality := c.cfg.LosslessQuality
	if lossy {
		quality = c.cfg.LossyQuality
	}
	return []imaging.EncodeOption{
		imaging.JPEGQuality(quality),
		imaging.PNGCompressionLevel(pngLevel(c.cfg.PNGCompression)),
	}
}

func (c *DefaultCompressor) downscale(img image.Image) image.Image {
	limit := c.cfg.MaxDimension
	if limit <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= limit && b.Dy() <= limit {
		return img
	}
	return imaging.Fit(img, limit, limit, imaging.Lanczos)
}

func pngLevel(name string) png.CompressionLevel {
	switch name {
	case "fast":
		return png.BestSpeed
	case "default":
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
