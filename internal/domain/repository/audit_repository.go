package repository

import (
	"context"
)

// AuditRepository stores the raw provider document keyed by archive path.
// Raw documents are kept only for triage; the relational store never holds
// them verbatim.
type AuditRepository interface {
	SaveRaw(ctx context.Context, path string, raw []byte) error
}
