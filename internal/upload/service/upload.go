package service

import (
	"context"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/config"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/domain"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
	"github.com/anthanhphan/go-upload-gateway/pkg/resilience"
)

// UploadServiceImpl is the facade that wires use-case services for the
// chunked-upload engine.
type UploadServiceImpl struct {
	cfg     *config.Config
	store   *sessionStore
	objects port.ObjectStore
	idGen   port.IDGenerator
	clock   Clock
	breaker *resilience.CircuitBreaker

	initUseCase     *initService
	chunkUseCase    *chunkService
	assemblyUseCase *assemblyService
	reaper          *reaperService
}

// Ensure UploadServiceImpl implements port.UploadService.
var _ port.UploadService = (*UploadServiceImpl)(nil)

// NewUploadService builds the upload service facade and all use-case services.
func NewUploadService(cfg *config.Config, objects port.ObjectStore, idGen port.IDGenerator, clock Clock) *UploadServiceImpl {
	if clock == nil {
		clock = SystemClock{}
	}

	svc := &UploadServiceImpl{
		cfg:     cfg,
		store:   newSessionStore(clock, cfg.Upload.MaxSessions, cfg.Upload.MaxBufferedBytes),
		objects: objects,
		idGen:   idGen,
		clock:   clock,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "object-store",
		}),
	}

	svc.initUseCase = newInitService(svc)
	svc.chunkUseCase = newChunkService(svc)
	svc.assemblyUseCase = newAssemblyService(svc)
	svc.reaper = newReaperService(svc)

	return svc
}

// Init delegates session initialization to the init use-case service.
func (s *UploadServiceImpl) Init(ctx context.Context, req port.InitRequest) (*domain.InitResult, error) {
	return s.initUseCase.init(ctx, req)
}

// UploadChunk delegates chunk ingestion to the chunk use-case service.
func (s *UploadServiceImpl) UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (*domain.ProgressSnapshot, error) {
	return s.chunkUseCase.uploadChunk(ctx, uploadID, index, data)
}

// GetProgress returns the current snapshot for a session.
func (s *UploadServiceImpl) GetProgress(ctx context.Context, uploadID string) (*domain.ProgressSnapshot, error) {
	return s.chunkUseCase.getProgress(ctx, uploadID)
}

// Complete delegates assembly and hand-off to the assembly use-case service.
func (s *UploadServiceImpl) Complete(ctx context.Context, uploadID string) (*domain.StoredFile, error) {
	return s.assemblyUseCase.complete(ctx, uploadID)
}

// Cancel delegates cancellation to the init use-case service.
func (s *UploadServiceImpl) Cancel(ctx context.Context, uploadID string) error {
	return s.initUseCase.cancel(ctx, uploadID)
}

// Resume delegates resumption to the init use-case service.
func (s *UploadServiceImpl) Resume(ctx context.Context, uploadID string) (*domain.ProgressSnapshot, error) {
	return s.initUseCase.resume(ctx, uploadID)
}

// ListOwnerUploads returns snapshots of the owner's non-terminal sessions.
func (s *UploadServiceImpl) ListOwnerUploads(_ context.Context, ownerID string) ([]domain.ProgressSnapshot, error) {
	return s.store.listOwner(ownerID), nil
}

// StartReaper launches the background expiry sweep. Stop it via StopReaper.
func (s *UploadServiceImpl) StartReaper() {
	s.reaper.start()
}

// StopReaper stops the background expiry sweep.
func (s *UploadServiceImpl) StopReaper() {
	s.reaper.stop()
}
