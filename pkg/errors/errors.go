// Package errors defines the failure taxonomy of a top-K run. Every fatal
// failure is an AppError wrapping one of the sentinels below together with
// the operation and file path that failed.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputNotFound            = errors.New("input not found")
	ErrIOFailure                = errors.New("i/o failure")
	ErrMalformedPartitionRecord = errors.New("malformed partition record")
	ErrInvalidConfig            = errors.New("invalid configuration")
	ErrReportFailed             = errors.New("report publish failed")
)

// Exit codes returned by the CLI for each sentinel.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitUsage            = 2
	ExitInputNotFound    = 3
	ExitIOFailure        = 4
	ExitCorruptPartition = 5
	ExitReportFailed     = 6
)

type AppError struct {
	Err     error
	Op      string
	Path    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Path != "" {
			b.WriteString(" ")
			b.WriteString(e.Path)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the underlying cause so errors.Is
// matches either (e.g. ErrIOFailure and fs.ErrPermission).
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func New(sentinel error, op string, path string, cause error) *AppError {
	return &AppError{
		Err:   sentinel,
		Op:    op,
		Path:  path,
		Cause: cause,
	}
}

func Newf(sentinel error, op string, path string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return ExitUsage
	case errors.Is(err, ErrInputNotFound):
		return ExitInputNotFound
	case errors.Is(err, ErrIOFailure):
		return ExitIOFailure
	case errors.Is(err, ErrMalformedPartitionRecord):
		return ExitCorruptPartition
	case errors.Is(err, ErrReportFailed):
		return ExitReportFailed
	default:
		return ExitFailure
	}
}
