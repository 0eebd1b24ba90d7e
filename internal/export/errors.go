package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/voxreel/voxreel-agent/internal/validator"
)

var (
	// ErrCancelled ends a job that was cancelled before encoding finished.
	ErrCancelled = errors.New("export cancelled")
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("export job not found")
	// ErrInvalidOptions rejects an export request before a job is created.
	ErrInvalidOptions = errors.New("invalid export options")
)

// ValidationError blocks an export. Report holds every issue, warnings
// included.
type ValidationError struct {
	Report *validator.Report
}

func (e *ValidationError) Error() string {
	errs := e.Report.Errors()
	msgs := make([]string, 0, len(errs))
	for _, is := range errs {
		msgs = append(msgs, is.Message)
	}
	return fmt.Sprintf("validation failed with %d error(s): %s", len(errs), strings.Join(msgs, "; "))
}

// CollaboratorError is a speech or caption failure that outlived its retry
// budget.
type CollaboratorError struct {
	Op        string
	SegmentID string
	Attempts  int
	Err       error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s for segment %s failed after %d attempt(s): %v", e.Op, e.SegmentID, e.Attempts, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// EncodingError is a non-zero encoder exit. It is never retried.
type EncodingError struct {
	ExitCode   int
	StderrTail string
}

func (e *EncodingError) Error() string {
	tail := strings.TrimSpace(e.StderrTail)
	if i := strings.LastIndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}
	return fmt.Sprintf("encoder exited with code %d: %s", e.ExitCode, tail)
}

// reasonFor maps a pipeline error to the recorded failure reason.
func reasonFor(stage Stage, err error) string {
	var ve *ValidationError
	var ce *CollaboratorError
	var ee *EncodingError
	switch {
	case errors.As(err, &ve):
		return ReasonValidation
	case errors.As(err, &ce):
		return ReasonPreprocessing
	case errors.As(err, &ee):
		return ReasonEncoding
	}
	switch stage {
	case StagePreprocessing:
		return ReasonPreprocessing
	case StageGraphBuilding:
		return ReasonGraph
	case StageEncoding:
		return ReasonEncoding
	default:
		return ReasonFinalizing
	}
}
