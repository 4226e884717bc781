package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure so the CLI can pick a message and an exit code.
type Kind string

const (
	Validation        Kind = "validation"
	NotFound          Kind = "not_found"
	Enumeration       Kind = "enumeration"
	Unsupported       Kind = "unsupported"
	ConversionFailure Kind = "conversion_failure"
	BackupExists      Kind = "backup_exists"
	IOFailure         Kind = "io_failure"
	Internal          Kind = "internal"
)

// Exit codes returned by the CLI.
const (
	ExitOK         = 0
	ExitValidation = 1
	ExitFilesystem = 2
)

type AppError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *AppError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// New builds an AppError from a plain message.
func New(kind Kind, op, path, msg string) error {
	return Wrap(kind, op, path, stderrors.New(msg))
}

// KindOf returns the kind of the first AppError in err's chain, or Internal.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err carries an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Kind == kind
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if KindOf(err) == Validation {
		return ExitValidation
	}
	return ExitFilesystem
}

func UserMessage(err error) string {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return err.Error()
	}
	switch appErr.Kind {
	case Validation:
		return fmt.Sprintf("Invalid input: %v", appErr.Err)
	case NotFound:
		return fmt.Sprintf("Path not found: %s", appErr.Path)
	case Enumeration:
		return fmt.Sprintf("Could not list files in %s: %v", appErr.Path, appErr.Err)
	case Unsupported:
		return fmt.Sprintf("Not supported format: %s", appErr.Path)
	case ConversionFailure:
		return fmt.Sprintf("Compression failed: %s: %v", appErr.Path, appErr.Err)
	case BackupExists:
		return fmt.Sprintf("Backup already exists: %s", appErr.Path)
	case IOFailure:
		return fmt.Sprintf("I/O error: %s: %v", appErr.Path, appErr.Err)
	default:
		return fmt.Sprintf("Unexpected error: %v", appErr.Err)
	}
}
