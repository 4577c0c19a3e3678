package port

import (
	"context"
	"io"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
)

// FileService defines the business logic for the ephemeral file pipeline.
type FileService interface {
	// Submit validates, screens, encrypts, and registers one upload, returning
	// the created record. Any validation or screening failure leaves no record
	// and no blob.
	Submit(ctx context.Context, declaredName, declaredMime, ownerID string, r io.Reader) (*domain.FileRecord, error)

	// Retrieve streams the decrypted plaintext of an active record to w. A
	// record whose lease has lapsed is destroyed before ErrExpired is returned.
	Retrieve(ctx context.Context, id string, w io.Writer) (*domain.FileRecord, error)

	// Stat returns the record for an active upload with the same lazy-expiry
	// semantics as Retrieve, without touching the ciphertext.
	Stat(ctx context.Context, id string) (*domain.FileRecord, error)

	// Remove destroys a record and its blob unconditionally. It reports true
	// if a record existed; removing an already-removed ID is a false no-op.
	Remove(ctx context.Context, id string) (bool, error)

	// Sweep eagerly destroys all expired records and returns how many were
	// reaped.
	Sweep(ctx context.Context) (int, error)
}
