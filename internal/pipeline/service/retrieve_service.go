package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
)

// retrieveService decrypts stored blobs and serves metadata reads.
type retrieveService struct {
	core   *FileServiceImpl
	reaper *reaperService
}

// newRetrieveService creates the retrieve use-case service.
func newRetrieveService(core *FileServiceImpl, reaper *reaperService) *retrieveService {
	return &retrieveService{core: core, reaper: reaper}
}

// retrieve streams the decrypted content of id to w. Expiry is checked
// before any byte is served; an expired file is destroyed on the spot
// and reported as gone.
func (s *retrieveService) retrieve(ctx context.Context, id string, w io.Writer) (*domain.FileRecord, error) {
	unlock := s.core.locks.Lock(id)
	defer unlock()

	rec, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	rc, err := s.core.blobs.Open(rec.StorageLocator)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			// Metadata without a blob is unrecoverable. Drop the record
			// so later calls see a consistent not-found.
			logger.Errorw("Blob missing for live record", "file_id", id, "locator", rec.StorageLocator)
			_ = s.core.store.Delete(ctx, id)
			return nil, port.ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer rc.Close()

	digest := sha256.New()
	if _, err := s.core.vault.OpenRead(id, rc, io.MultiWriter(w, digest)); err != nil {
		logger.Errorw("Decryption failed", "file_id", id, "error", err.Error())
		return nil, fmt.Errorf("%w: %v", port.ErrDecryptionFailure, err)
	}

	if !digestMatches(rec.ContentHash, digest.Sum(nil)) {
		logger.Errorw("Content hash mismatch after decryption", "file_id", id)
		return nil, fmt.Errorf("%w: content hash mismatch", port.ErrDecryptionFailure)
	}

	logger.Infow("Retrieval completed", "file_id", id, "size_bytes", rec.SizeBytes)
	return rec, nil
}

// stat returns the record for id without touching the blob.
func (s *retrieveService) stat(ctx context.Context, id string) (*domain.FileRecord, error) {
	unlock := s.core.locks.Lock(id)
	defer unlock()
	return s.lookup(ctx, id)
}

// lookup fetches a record and enforces lazy expiry. The caller must
// hold the per-file lock.
func (s *retrieveService) lookup(ctx context.Context, id string) (*domain.FileRecord, error) {
	rec, err := s.core.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.core.now()) {
		if err := s.reaper.destroy(ctx, rec); err != nil {
			logger.Errorw("Lazy expiry destruction failed", "file_id", id, "error", err.Error())
		}
		return nil, port.ErrExpired
	}
	return rec, nil
}

// digestMatches compares the recorded hex digest against a computed one.
func digestMatches(recorded string, computed []byte) bool {
	want, err := hex.DecodeString(recorded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, computed) == 1
}
