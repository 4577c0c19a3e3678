package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/flipfile/flipfile/internal/pipeline/classify"
	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
	"github.com/flipfile/flipfile/pkg/naming"
)

// submitService orchestrates validation, screening, and encrypted persistence.
type submitService struct {
	core *FileServiceImpl
}

// newSubmitService creates the submit use-case service.
func newSubmitService(core *FileServiceImpl) *submitService {
	return &submitService{core: core}
}

// submit runs the full intake workflow. Content is staged in a spool
// file first so it can be classified and screened in full before a
// single encrypted byte reaches blob storage. The spool is wiped on
// every path out of this function.
func (s *submitService) submit(ctx context.Context, declaredName, declaredMime, ownerID string, r io.Reader) (*domain.FileRecord, error) {
	logger.Infow("Submission started", "file_name", declaredName)

	spool, err := s.core.blobs.Stage()
	if err != nil {
		return nil, fmt.Errorf("%w: stage spool: %v", port.ErrWriteFailure, err)
	}
	defer func() {
		if err := spool.Cleanup(context.WithoutCancel(ctx)); err != nil {
			logger.Warnw("Spool cleanup failed", "error", err.Error())
		}
	}()

	if err := s.spoolContent(spool, r); err != nil {
		return nil, err
	}

	mime, err := s.classifyContent(spool, declaredName, declaredMime)
	if err != nil {
		logger.Warnw("Submission rejected by classifier", "file_name", declaredName, "error", err.Error())
		return nil, err
	}

	if err := s.screenContent(ctx, spool, declaredName); err != nil {
		return nil, err
	}

	rec, err := s.sealAndPersist(ctx, spool, declaredName, mime, ownerID)
	if err != nil {
		logger.Errorw("Submission failed", "file_name", declaredName, "error", err.Error())
		return nil, err
	}

	logger.Infow("Submission completed",
		"file_id", rec.ID,
		"mime_type", rec.MimeType,
		"size_bytes", rec.SizeBytes,
		"expires_at", rec.ExpiresAt)
	return rec, nil
}

// spoolContent copies the upload into the spool, enforcing the size cap.
func (s *submitService) spoolContent(spool port.Spool, r io.Reader) error {
	maxSize := s.core.cfg.App.MaxFileSize
	n, err := io.Copy(spool, io.LimitReader(r, maxSize+1))
	if err != nil {
		return fmt.Errorf("%w: spool content: %v", port.ErrWriteFailure, err)
	}
	if n > maxSize {
		return port.ErrSizeExceeded
	}
	return nil
}

// classifyContent detects the true MIME type from the spooled bytes and
// validates it against the declared file name. The client-declared MIME
// is a hint only and never overrides detection.
func (s *submitService) classifyContent(spool port.Spool, declaredName, declaredMime string) (string, error) {
	rc, err := spool.Reader()
	if err != nil {
		return "", fmt.Errorf("%w: reopen spool: %v", port.ErrWriteFailure, err)
	}
	defer rc.Close()

	prefix := make([]byte, classify.PrefixSize)
	n, err := io.ReadFull(rc, prefix)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("%w: read spool prefix: %v", port.ErrWriteFailure, err)
	}

	mime, err := classify.Classify(prefix[:n], declaredName)
	if err != nil {
		return "", err
	}
	if declaredMime != "" && declaredMime != mime {
		logger.Debugw("Declared MIME differs from detection",
			"declared", declaredMime, "detected", mime)
	}
	return mime, nil
}

// screenContent streams the full spool through the threat screener.
func (s *submitService) screenContent(ctx context.Context, spool port.Spool, declaredName string) error {
	rc, err := spool.Reader()
	if err != nil {
		return fmt.Errorf("%w: reopen spool: %v", port.ErrWriteFailure, err)
	}
	defer rc.Close()

	verdict, err := s.core.screener.Screen(ctx, rc)
	if err != nil {
		return err
	}
	if verdict.Flagged {
		logger.Warnw("Submission flagged by screener",
			"file_name", declaredName, "reason", verdict.Reason)
		return fmt.Errorf("%w: %s", port.ErrSuspiciousContent, verdict.Reason)
	}
	return nil
}

// sealAndPersist assigns identity, encrypts the spool into blob storage,
// and records metadata. The content hash is computed over the plaintext
// in the same pass that feeds the encryptor.
func (s *submitService) sealAndPersist(ctx context.Context, spool port.Spool, declaredName, mime, ownerID string) (*domain.FileRecord, error) {
	id := naming.NewFileID()
	now := s.core.now()

	rc, err := spool.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: reopen spool: %v", port.ErrWriteFailure, err)
	}
	defer rc.Close()

	bw, err := s.core.blobs.Create(id)
	if err != nil {
		return nil, fmt.Errorf("%w: create blob: %v", port.ErrWriteFailure, err)
	}

	digest := sha256.New()
	if _, err := s.core.vault.SealWrite(id, io.TeeReader(rc, digest), bw); err != nil {
		_ = bw.Abort()
		return nil, fmt.Errorf("%w: seal content: %v", port.ErrWriteFailure, err)
	}

	locator, err := bw.Commit()
	if err != nil {
		return nil, fmt.Errorf("%w: commit blob: %v", port.ErrWriteFailure, err)
	}

	rec := &domain.FileRecord{
		ID:             id,
		OriginalName:   declaredName,
		SecureName:     naming.SecureName(declaredName, now),
		MimeType:       mime,
		SizeBytes:      spool.Size(),
		ContentHash:    hex.EncodeToString(digest.Sum(nil)),
		UploadedAt:     now,
		ExpiresAt:      now.Add(s.core.retention()),
		OwnerID:        ownerID,
		StorageLocator: locator,
		ScanStatus:     domain.ScanClean,
	}

	if err := s.core.store.Put(ctx, rec); err != nil {
		if wipeErr := s.core.blobs.Wipe(context.WithoutCancel(ctx), locator); wipeErr != nil {
			logger.Errorw("Orphan blob wipe failed", "file_id", id, "error", wipeErr.Error())
		}
		return nil, fmt.Errorf("%w: persist record: %v", port.ErrWriteFailure, err)
	}
	return rec, nil
}
