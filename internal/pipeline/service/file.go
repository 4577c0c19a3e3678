package service

import (
	"context"
	"io"
	"time"

	"github.com/flipfile/flipfile/internal/pipeline/config"
	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
	"github.com/flipfile/flipfile/pkg/resilience"
	"github.com/flipfile/flipfile/pkg/vault"
)

// FileServiceImpl is the facade that wires use-case services for the
// submission, retrieval, and destruction workflows.
type FileServiceImpl struct {
	cfg      *config.Config
	store    port.MetadataStore
	blobs    port.BlobStore
	screener port.Screener
	vault    *vault.Vault
	locks    *resilience.KeyedMutex
	now      func() time.Time

	submitUseCase   *submitService
	retrieveUseCase *retrieveService
	reaperUseCase   *reaperService
}

// Ensure FileServiceImpl implements port.FileService.
var _ port.FileService = (*FileServiceImpl)(nil)

// NewFileService builds the file service facade and all use-case services.
func NewFileService(
	cfg *config.Config,
	store port.MetadataStore,
	blobs port.BlobStore,
	screener port.Screener,
	fileVault *vault.Vault,
) *FileServiceImpl {
	svc := &FileServiceImpl{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		screener: screener,
		vault:    fileVault,
		locks:    resilience.NewKeyedMutex(),
		now:      time.Now,
	}

	svc.reaperUseCase = newReaperService(svc)
	svc.submitUseCase = newSubmitService(svc)
	svc.retrieveUseCase = newRetrieveService(svc, svc.reaperUseCase)

	return svc
}

// Submit delegates submission orchestration to the submit use-case service.
func (s *FileServiceImpl) Submit(ctx context.Context, declaredName, declaredMime, ownerID string, r io.Reader) (*domain.FileRecord, error) {
	return s.submitUseCase.submit(ctx, declaredName, declaredMime, ownerID, r)
}

// Retrieve delegates decryption and streaming to the retrieve use-case service.
func (s *FileServiceImpl) Retrieve(ctx context.Context, id string, w io.Writer) (*domain.FileRecord, error) {
	return s.retrieveUseCase.retrieve(ctx, id, w)
}

// Stat delegates metadata lookup to the retrieve use-case service.
func (s *FileServiceImpl) Stat(ctx context.Context, id string) (*domain.FileRecord, error) {
	return s.retrieveUseCase.stat(ctx, id)
}

// Remove delegates explicit destruction to the reaper use-case service.
func (s *FileServiceImpl) Remove(ctx context.Context, id string) (bool, error) {
	return s.reaperUseCase.remove(ctx, id)
}

// Sweep delegates expired-file collection to the reaper use-case service.
func (s *FileServiceImpl) Sweep(ctx context.Context) (int, error) {
	return s.reaperUseCase.sweep(ctx)
}

// retention resolves the configured retention duration with fallback.
func (s *FileServiceImpl) retention() time.Duration {
	minutes := s.cfg.App.RetentionMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}
