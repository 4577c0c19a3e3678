package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
	"github.com/flipfile/flipfile/pkg/resilience"
)

// reaperService destroys files, either on demand or when retention runs out.
type reaperService struct {
	core *FileServiceImpl
}

// newReaperService creates the reaper use-case service.
func newReaperService(core *FileServiceImpl) *reaperService {
	return &reaperService{core: core}
}

// destroy wipes the blob first and deregisters the record second, so a
// crash in between leaves a record pointing at a missing blob rather
// than a live blob with no record. The caller must hold the per-file lock.
func (s *reaperService) destroy(ctx context.Context, rec *domain.FileRecord) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.core.blobs.Wipe(ctx, rec.StorageLocator); err != nil {
		return fmt.Errorf("wipe blob: %w", err)
	}
	if err := s.core.store.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	logger.Infow("File destroyed", "file_id", rec.ID, "secure_name", rec.SecureName)
	return nil
}

// remove destroys the file for id. It reports false when no record
// exists, so repeated removals are harmless.
func (s *reaperService) remove(ctx context.Context, id string) (bool, error) {
	unlock := s.core.locks.Lock(id)
	defer unlock()

	rec, err := s.core.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.destroy(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// sweep scans all records and destroys the expired ones, fanning the
// work across a bounded worker pool. It returns the number destroyed.
func (s *reaperService) sweep(ctx context.Context) (int, error) {
	ids, err := s.core.store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}

	workers := s.core.cfg.App.SweepWorkers
	if workers <= 0 {
		workers = 4
	}
	pool := resilience.NewWorkerPool(workers, workers*2)

	var destroyed atomic.Int64
	for _, id := range ids {
		id := id
		err := pool.Submit(ctx, func() {
			if s.sweepOne(ctx, id) {
				destroyed.Add(1)
			}
		})
		if err != nil {
			break
		}
	}
	pool.Close()
	pool.Wait()

	if n := destroyed.Load(); n > 0 {
		logger.Infow("Sweep completed", "destroyed", n, "scanned", len(ids))
		return int(n), ctx.Err()
	}
	return 0, ctx.Err()
}

// sweepOne destroys id if its retention has run out. Records that
// vanished since listing are skipped.
func (s *reaperService) sweepOne(ctx context.Context, id string) bool {
	unlock := s.core.locks.Lock(id)
	defer unlock()

	rec, err := s.core.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, port.ErrNotFound) {
			logger.Warnw("Sweep lookup failed", "file_id", id, "error", err.Error())
		}
		return false
	}
	if !rec.Expired(s.core.now()) {
		return false
	}
	if err := s.destroy(ctx, rec); err != nil {
		logger.Errorw("Sweep destruction failed", "file_id", id, "error", err.Error())
		return false
	}
	return true
}
