package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for error classification. Record-local markers are
// recovered by the pipeline (the record is skipped and annotated in the run
// report); submission markers drive the retry decision; run-fatal markers
// abort the run.
var (
	// Record-local.
	ErrMissingField   = errors.New("missing field")
	ErrValidation     = errors.New("validation error")
	ErrConsistency    = errors.New("consistency error")
	ErrIncompleteData = errors.New("incomplete data")
	ErrMapping        = errors.New("mapping error")

	// Submission.
	ErrTransient = errors.New("transient failure")
	ErrPermanent = errors.New("permanent failure")

	// Run-fatal.
	ErrAuth              = errors.New("authentication error")
	ErrSourceUnavailable = errors.New("source unavailable")

	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RecordLocal reports whether the error is scoped to a single source record.
// Record-local errors never abort a run; the record is skipped instead.
func RecordLocal(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConsistency) ||
		errors.Is(err, ErrIncompleteData) ||
		errors.Is(err, ErrMapping)
}

// RunFatal reports whether the error must escape the run boundary.
func RunFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrSourceUnavailable)
}

// Kind returns a short classification label used in run reports and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrIncompleteData):
		return "incomplete_data"
	case errors.Is(err, ErrMapping):
		return "mapping"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrPermanent):
		return "permanent"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
