package services

import (
	"errors"
	"io"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrFeedUnreachable, "feed", "fetch", "status 503", io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrFeedUnreachable) {
		t.Fatalf("expected ErrFeedUnreachable marker, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	want := "feed unreachable: feed: fetch: status 503: unexpected EOF"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrValidation, "store", "add podcast", "rss_url is required", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation marker, got %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "", "", "", io.EOF)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient fallback, got %v", err)
	}
}
