package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFeedUnreachable marks transport failures while fetching a feed.
	ErrFeedUnreachable = errors.New("feed unreachable")
	// ErrFeedUnparsable marks responses that could not be parsed as a feed.
	ErrFeedUnparsable = errors.New("feed unparsable")
	// ErrInvalidTransition marks episode lifecycle transitions outside the
	// allowed edge table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyInFlight marks download requests for episodes already downloading.
	ErrAlreadyInFlight = errors.New("download already in flight")
	// ErrNotInFlight marks cancel requests for episodes with no active download.
	ErrNotInFlight = errors.New("no download in flight")
	// ErrDeviceUnavailable marks sync attempts with no usable watch mounted.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrConversion marks audio conversion failures.
	ErrConversion = errors.New("conversion error")
	// ErrExternalTool marks failures of external executables such as ffmpeg.
	ErrExternalTool = errors.New("external tool error")
	// ErrValidation marks rejected inputs.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups for rows that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks uniqueness violations such as duplicate feed URLs.
	ErrConflict = errors.New("already exists")
	// ErrTimeout marks operations abandoned after their deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks failures that may succeed on retry.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
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
