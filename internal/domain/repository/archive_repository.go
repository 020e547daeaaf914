package repository

import (
	"context"
	"errors"

	"cruisesync-service/internal/domain/entity"
)

// ErrNotFound marks a document or directory absent from the remote archive.
// It is terminal, distinct from transient I/O, so operators can tell
// "not published yet" from "server down".
var ErrNotFound = errors.New("archive: not found")

// ArchiveSession is one live session against the remote file archive.
// Callers must not assume a session survives an error; errored sessions are
// handed back through ArchivePool.Discard.
type ArchiveSession interface {
	List(ctx context.Context, dir string) ([]entity.ArchiveEntry, error)
	Download(ctx context.Context, path string) ([]byte, error)
}

// ArchivePool hands out bounded archive sessions. Release returns a healthy
// session for reuse; Discard destroys an errored one, a replacement is
// created lazily on the next Acquire.
type ArchivePool interface {
	Acquire(ctx context.Context) (ArchiveSession, error)
	Release(session ArchiveSession)
	Discard(session ArchiveSession)
}
