package logging

import "testing"

func TestProgressSamplerEmitsOnBucketBoundaries(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(0, "download") {
		t.Fatal("first event should emit")
	}
	if s.ShouldLog(4, "download") {
		t.Fatal("same bucket should not emit")
	}
	if !s.ShouldLog(12, "download") {
		t.Fatal("crossing a bucket should emit")
	}
	if !s.ShouldLog(100, "download") {
		t.Fatal("completion should emit")
	}
}

func TestProgressSamplerEmitsOnPhaseChange(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(50, "download") {
		t.Fatal("first event should emit")
	}
	if !s.ShouldLog(50, "convert") {
		t.Fatal("phase change should emit even without progress change")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(90, "download")
	s.Reset()
	if !s.ShouldLog(5, "download") {
		t.Fatal("reset sampler should emit again")
	}
}
