package fileutil

import (
	"strings"
	"testing"
)

func TestGUIDTokenStable(t *testing.T) {
	a := GUIDToken("ep-001")
	b := GUIDToken("ep-001")
	if a != b {
		t.Fatalf("token not stable: %q vs %q", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("token length = %d, want 8", len(a))
	}
	if GUIDToken("ep-002") == a {
		t.Fatal("distinct guids should produce distinct tokens")
	}
}

func TestEpisodeFileName(t *testing.T) {
	name := EpisodeFileName("Episode 1: The Start", "ep-001", ".MP3")
	if !strings.HasSuffix(name, ".mp3") {
		t.Fatalf("extension not normalized: %q", name)
	}
	if !strings.HasPrefix(name, "Episode 1 The Start-") {
		t.Fatalf("title not sanitized: %q", name)
	}
	if !HasGUIDToken(name, "ep-001") {
		t.Fatalf("token missing from %q", name)
	}
	if HasGUIDToken(name, "ep-002") {
		t.Fatalf("wrong guid matched %q", name)
	}
}

func TestEpisodeFileNameDefaultsExtension(t *testing.T) {
	name := EpisodeFileName("Untitled", "g", "")
	if !strings.HasSuffix(name, ".mp3") {
		t.Fatalf("expected mp3 default, got %q", name)
	}
}
