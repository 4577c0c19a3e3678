package port

import (
	"context"
	"io"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
)

//go:generate mockgen -destination=../service/mocks/repository_mock.go -package=mocks -source=repository.go

// MetadataStore is the key-value contract for FileRecord metadata. It is the
// single source of truth for lifecycle decisions; expiry is evaluated by the
// service on top of Get, never inside the store.
type MetadataStore interface {
	// Put registers a record, replacing any existing record with the same ID.
	Put(ctx context.Context, rec *domain.FileRecord) error

	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.FileRecord, error)

	// Delete removes the record for id. Deleting a missing ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Keys lists all registered record IDs, for the retention sweep.
	Keys(ctx context.Context) ([]string, error)

	// Close releases the backing connection or file handle.
	Close() error
}

// BlobWriter is an in-progress ciphertext write. Exactly one of Commit or
// Abort must be called; until Commit returns, no locator is visible anywhere.
type BlobWriter interface {
	io.Writer

	// Commit flushes and atomically publishes the blob, returning its locator.
	Commit() (string, error)

	// Abort discards everything written so far.
	Abort() error
}

// Spool is a quarantine staging area for one inbound plaintext stream. It is
// written once, re-read as many times as the validation chain needs, and
// securely wiped by Cleanup before the submission that created it returns.
type Spool interface {
	io.Writer

	// Size reports the bytes written so far.
	Size() int64

	// Reader returns an independent read handle from the start of the spool.
	Reader() (io.ReadCloser, error)

	// Cleanup securely destroys the spool. Safe to call unconditionally.
	Cleanup(ctx context.Context) error
}

// BlobStore owns the encrypted blobs, the staging area, and secure
// destruction of both.
type BlobStore interface {
	// Stage opens a plaintext spool for an in-flight submission.
	Stage() (Spool, error)

	// Create opens a write for a new blob keyed by file ID.
	Create(id string) (BlobWriter, error)

	// Open returns a reader over a committed blob, or ErrNotFound.
	Open(locator string) (io.ReadCloser, error)

	// Wipe overwrites the blob's full extent with random data for the
	// configured number of passes, then unlinks it. A missing blob is not an
	// error.
	Wipe(ctx context.Context, locator string) error
}

// Verdict is the outcome of screening one upload.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Screener inspects the full content stream for known-bad material before any
// ciphertext is written. Implementations range from an in-process heuristic to
// a networked scanning daemon; callers never know which.
type Screener interface {
	Screen(ctx context.Context, r io.Reader) (Verdict, error)
}
