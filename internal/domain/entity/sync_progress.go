package entity

import (
	"time"
)

// FailureReason classifies why a document could not be synchronized
type FailureReason string

const (
	FailureTransientIO   FailureReason = "transient-io"
	FailureNotFound      FailureReason = "not-found"
	FailureUnrecoverable FailureReason = "unrecoverable"
	FailureUpsert        FailureReason = "upsert-error"
)

// DocumentFailure records the terminal failure of one document path
type DocumentFailure struct {
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// SyncProgress is the resumable ledger for one sync-run scope. It is an
// explicit value passed through the orchestrator and persisted after every
// document, never an ambient singleton.
type SyncProgress struct {
	RunID     string                     `json:"runId"`
	StartedAt time.Time                  `json:"startedAt"`
	UpdatedAt time.Time                  `json:"updatedAt"`
	Completed map[string]bool            `json:"completed"`
	Failed    map[string]DocumentFailure `json:"failed"`
	Processed int                        `json:"processed"`
	Succeeded int                        `json:"succeeded"`
	NoPricing int                        `json:"noPricing"`
}

// NewSyncProgress creates an empty ledger for the given run scope
func NewSyncProgress(runID string) *SyncProgress {
	now := time.Now().UTC()
	return &SyncProgress{
		RunID:     runID,
		StartedAt: now,
		UpdatedAt: now,
		Completed: map[string]bool{},
		Failed:    map[string]DocumentFailure{},
	}
}

// IsCompleted reports whether the path finished successfully in this scope
func (p *SyncProgress) IsCompleted(path string) bool {
	return p.Completed[path]
}

// MarkCompleted records a successful document and clears any earlier failure
func (p *SyncProgress) MarkCompleted(path string) {
	if p.Completed == nil {
		p.Completed = map[string]bool{}
	}
	p.Completed[path] = true
	delete(p.Failed, path)
	p.Processed++
	p.Succeeded++
	p.UpdatedAt = time.Now().UTC()
}

// MarkFailed records a terminal per-document failure
func (p *SyncProgress) MarkFailed(path string, reason FailureReason, detail string) {
	if p.Failed == nil {
		p.Failed = map[string]DocumentFailure{}
	}
	p.Failed[path] = DocumentFailure{Reason: reason, Detail: detail}
	p.Processed++
	p.UpdatedAt = time.Now().UTC()
}

// MarkNoPricing counts a document that parsed but carried no positive price.
// The sailing is still upserted, so the path also gets MarkCompleted.
func (p *SyncProgress) MarkNoPricing() {
	p.NoPricing++
}

// FailedPaths returns the failed path set for a follow-up run
func (p *SyncProgress) FailedPaths() []string {
	paths := make([]string, 0, len(p.Failed))
	for path := range p.Failed {
		paths = append(paths, path)
	}
	return paths
}

// Clean reports whether the run finished with zero failures
func (p *SyncProgress) Clean() bool {
	return len(p.Failed) == 0
}
