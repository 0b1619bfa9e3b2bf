package voucher

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Validation kinds, surfaced directly to the submitting user.
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrFileTooLarge    = errors.New("attachment too large")

	// Processing kinds, surfaced as a generic "could not process attachment".
	ErrDecodeFailure     = errors.New("could not decode attachment")
	ErrProcessingTimeout = errors.New("attachment processing timed out")

	ErrMalformedEncoding = errors.New("malformed encoded image")
)

// ValidationError describes why a file was refused before processing.
type ValidationError struct {
	Kind      error
	FileName  string
	MediaType string
	Size      int64
	Limit     int64
}

func (e *ValidationError) Error() string {
	if e.Kind == ErrFileTooLarge {
		return fmt.Sprintf("%s: %s is %d bytes, limit is %d", e.Kind, e.FileName, e.Size, e.Limit)
	}
	return fmt.Sprintf("%s: %s (%q)", e.Kind, e.FileName, e.MediaType)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// IsValidation reports whether err was produced by the validator.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsProcessing reports whether err is a decode or timeout failure.
func IsProcessing(err error) bool {
	return errors.Is(err, ErrDecodeFailure) || errors.Is(err, ErrProcessingTimeout)
}

// interrupted maps a finished context to the processing taxonomy.
func interrupted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProcessingTimeout, ctx.Err())
	}
	return fmt.Errorf("voucher processing interrupted: %w", ctx.Err())
}
