package entity

import (
	"testing"
)

func TestSyncProgressLifecycle(t *testing.T) {
	p := NewSyncProgress("crawl:2026/08")

	if !p.Clean() {
		t.Errorf("fresh ledger should be clean")
	}

	p.MarkFailed("a.json", FailureTransientIO, "timeout")
	p.MarkCompleted("b.json")
	if p.Clean() {
		t.Errorf("ledger with failures is not clean")
	}
	if p.Processed != 2 || p.Succeeded != 1 {
		t.Errorf("counters = processed %d succeeded %d, want 2/1", p.Processed, p.Succeeded)
	}
	if !p.IsCompleted("b.json") || p.IsCompleted("a.json") {
		t.Errorf("completion tracking wrong")
	}

	// A later success for a previously failed path clears the failure.
	p.MarkCompleted("a.json")
	if !p.Clean() {
		t.Errorf("ledger should be clean once the failed path completes, failed=%v", p.Failed)
	}
}

func TestSyncProgressFailedPaths(t *testing.T) {
	p := NewSyncProgress("flags")
	p.MarkFailed("x.json", FailureNotFound, "")
	p.MarkFailed("y.json", FailureUpsert, "constraint")

	paths := p.FailedPaths()
	if len(paths) != 2 {
		t.Fatalf("FailedPaths = %v", paths)
	}
}
