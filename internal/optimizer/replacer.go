package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"ioptimizer-go/internal/compressor"
	apperrors "ioptimizer-go/internal/errors"
	"ioptimizer-go/internal/logger"

	"github.com/sirupsen/logrus"
)

const defaultBackupSuffix = ".bkp"

// Replacer runs the compress, backup, overwrite, cleanup sequence for one file.
type Replacer struct {
	Compressor      compressor.Compressor
	Logger          logrus.FieldLogger
	BackupSuffix    string
	OverwriteBackup bool
}

// NewReplacer returns a Replacer writing backups as <file><backupSuffix>.
func NewReplacer(c compressor.Compressor, log logrus.FieldLogger, backupSuffix string, overwriteBackup bool) *Replacer {
	return &Replacer{
		Compressor:      c,
		Logger:          log,
		BackupSuffix:    backupSuffix,
		OverwriteBackup: overwriteBackup,
	}
}

// ProcessOne converts a single candidate. Every failure is reported in the
// returned Line; the original is either untouched or fully replaced.
func (r *Replacer) ProcessOne(ctx context.Context, file Candidate, lossy, backup bool) Line {
	log := logger.WithFile(r.fieldLogger(), file.Path)

	if !r.Compressor.IsSupported(file.Path) {
		log.Debug("Format not supported")
		return Line{
			Kind:         LineUnsupported,
			Path:         file.Path,
			OriginalSize: file.Size,
			Err:          apperrors.New(apperrors.Unsupported, "compress", file.Path, "format not supported"),
		}
	}

	out := r.Compressor.Compress(ctx, file.Path, lossy)
	defer r.discard(file.Path, out.ResultPath)

	line := Line{
		Path:           file.Path,
		ResultPath:     out.ResultPath,
		OriginalSize:   out.OriginalSize,
		CompressedSize: out.CompressedSize,
		Message:        out.Message,
	}

	switch out.Status {
	case compressor.StatusSkipped:
		line.Kind = LineSkipped
		return line
	case compressor.StatusUnchanged:
		line.Kind = LineUnchanged
		return line
	case compressor.StatusCompleted:
	default:
		line.Kind = LineFailed
		line.Err = apperrors.Wrap(apperrors.ConversionFailure, "compress", file.Path, outcomeErr(out))
		log.WithError(line.Err).Warn("Compression failed")
		return line
	}

	if out.ResultPath == "" || out.ResultPath == file.Path || !exists(out.ResultPath) {
		line.Kind = LineFailed
		line.Message = "compression produced no result file"
		line.Err = apperrors.New(apperrors.ConversionFailure, "compress", file.Path, line.Message)
		log.Warn("Compression produced no result file")
		return line
	}

	if backup {
		bkp, err := r.backup(file.Path)
		if err != nil {
			log.WithError(err).Error("Backup failed, original left untouched")
			return errorLine(line, err)
		}
		line.BackupPath = bkp
		logger.WithFileOperation(r.fieldLogger(), file.Path, "backup").Debugf("Backup written to %s", bkp)
	}

	if err := r.overwrite(file.Path, out.ResultPath, line.BackupPath); err != nil {
		log.WithError(err).Error("Overwrite failed")
		return errorLine(line, err)
	}

	line.Kind = LineConverted
	log.WithFields(logrus.Fields{
		"original_size":   line.OriginalSize,
		"compressed_size": line.CompressedSize,
	}).Info("Replaced with compressed result")
	return line
}

func (r *Replacer) fieldLogger() logrus.FieldLogger {
	if r.Logger == nil {
		return logger.Discard()
	}
	return r.Logger
}

func (r *Replacer) backupSuffix() string {
	if r.BackupSuffix == "" {
		return defaultBackupSuffix
	}
	return r.BackupSuffix
}

// backup copies path to path+suffix. An existing backup is an error unless
// OverwriteBackup is set.
func (r *Replacer) backup(path string) (string, error) {
	dst := path + r.backupSuffix()

	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if r.OverwriteBackup {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	if err := copyFile(path, dst, flag); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", apperrors.Wrap(apperrors.BackupExists, "backup", dst, err)
		}
		return "", apperrors.Wrap(apperrors.IOFailure, "backup", dst, err)
	}
	return dst, nil
}

// overwrite writes result's bytes into original. The file is truncated and
// rewritten through its own path, so symlinks are followed and hardlinks,
// owner, mode and extended attributes stay with the original inode. If the
// write fails part way, the original is restored from backupPath when there
// is one.
func (r *Replacer) overwrite(original, result, backupPath string) error {
	if err := writeInto(original, result); err != nil {
		if backupPath != "" {
			if rerr := writeInto(original, backupPath); rerr != nil {
				logger.WithFileOperation(r.fieldLogger(), original, "restore").Errorf("Could not restore from backup: %v", rerr)
			}
		}
		return apperrors.Wrap(apperrors.IOFailure, "overwrite", original, err)
	}
	return nil
}

// discard removes a leftover temporary result on every exit path.
func (r *Replacer) discard(original, result string) {
	if result == "" || result == original {
		return
	}
	if err := os.Remove(result); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithFileOperation(r.fieldLogger(), result, "cleanup").Warnf("Could not remove temporary result: %v", err)
	}
}

// copyFile copies src to dst, opening dst with the given flags and src's permissions.
func copyFile(src, dst string, flag int) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, flag, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// writeInto truncates the existing file dst and copies src into it.
func writeInto(dst, src string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func outcomeErr(out compressor.Outcome) error {
	if out.Err != nil {
		return out.Err
	}
	if out.Message != "" {
		return errors.New(out.Message)
	}
	return fmt.Errorf("compressor returned status %q", out.Status)
}

func errorLine(line Line, err error) Line {
	line.Kind = LineError
	line.Err = err
	line.Message = err.Error()
	return line
}
