package domain

import (
	"testing"
)

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if id == "" {
			t.Fatal("expected non-empty ID")
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestHashContent_Deterministic(t *testing.T) {
	a := HashContent([]byte("hello world"))
	b := HashContent([]byte("hello world"))
	c := HashContent([]byte("hello worlds"))

	if a != b {
		t.Errorf("same bytes produced different hashes: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different bytes produced the same hash")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestNewJobEnvelope(t *testing.T) {
	job := NewJobEnvelope("file:///tmp/report.pdf", "application/pdf")

	if job.ID == "" {
		t.Error("expected job ID to be set")
	}
	if job.SourceURI != "file:///tmp/report.pdf" {
		t.Errorf("unexpected source URI: %s", job.SourceURI)
	}
	if job.ReceivedAt.IsZero() {
		t.Error("expected received timestamp")
	}
}

func TestStagingRecord_Lifecycle(t *testing.T) {
	job := NewJobEnvelope("file:///tmp/a.txt", "text/plain")
	rec := NewStagingRecord(job)

	if rec.Status != StagingPending {
		t.Errorf("new record should be pending, got %s", rec.Status)
	}
	if rec.Attempts != 0 {
		t.Errorf("new record should have 0 attempts, got %d", rec.Attempts)
	}

	rec.MarkProcessing()
	if rec.Status != StagingProcessing {
		t.Errorf("expected processing, got %s", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", rec.Attempts)
	}

	rec.MarkPending("provider timeout")
	if rec.Status != StagingPending {
		t.Errorf("expected pending, got %s", rec.Status)
	}
	if rec.Error != "provider timeout" {
		t.Errorf("expected error to be recorded, got %q", rec.Error)
	}

	rec.MarkProcessing()
	if rec.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", rec.Attempts)
	}

	rec.MarkDone("doc-1")
	if rec.Status != StagingDone {
		t.Errorf("expected done, got %s", rec.Status)
	}
	if rec.DocumentID != "doc-1" {
		t.Errorf("expected document id recorded, got %q", rec.DocumentID)
	}
	if rec.Error != "" {
		t.Errorf("done record should clear error, got %q", rec.Error)
	}
}

func TestStagingRecord_MarkFailed(t *testing.T) {
	rec := NewStagingRecord(NewJobEnvelope("file:///tmp/a.txt", ""))
	rec.MarkProcessing()
	rec.MarkFailed("exhausted retries")

	if rec.Status != StagingFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if rec.Error != "exhausted retries" {
		t.Errorf("expected failure reason, got %q", rec.Error)
	}
}
