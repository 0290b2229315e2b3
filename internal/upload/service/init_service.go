package service

import (
	"context"
	"fmt"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/domain"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
	"github.com/anthanhphan/gosdk/logger"
)

// initService owns session creation, resumption matching, cancel and resume.
type initService struct {
	core *UploadServiceImpl
}

// newInitService creates the session-lifecycle use-case service.
func newInitService(core *UploadServiceImpl) *initService {
	return &initService{core: core}
}

// init starts a new session, or returns the progress of an existing
// non-terminal session with the same (fileName, fileSize, ownerID).
func (s *initService) init(_ context.Context, req port.InitRequest) (*domain.InitResult, error) {
	maxSize := s.core.cfg.Upload.MaxFileSize
	if req.FileSize <= 0 || (maxSize > 0 && req.FileSize > maxSize) {
		return nil, fmt.Errorf("%w: %d", port.ErrFileSizeInvalid, req.FileSize)
	}

	if result, ok := s.tryResume(req); ok {
		return result, nil
	}

	chunkSize := s.core.cfg.Upload.ChunkSize
	totalChunks := int((req.FileSize + chunkSize - 1) / chunkSize)
	if req.TotalChunksHint != 0 && req.TotalChunksHint != totalChunks {
		return nil, fmt.Errorf("%w: hint=%d derived=%d", port.ErrChunkCountMismatch, req.TotalChunksHint, totalChunks)
	}

	rawID, err := s.core.idGen.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.core.clock.Now()
	sess := &domain.UploadSession{
		ID:               formatSessionID(rawID),
		FileName:         req.FileName,
		DeclaredFileSize: req.FileSize,
		FileType:         req.FileType,
		OwnerID:          req.OwnerID,
		FolderID:         req.FolderID,
		TotalChunks:      totalChunks,
		ChunkSize:        chunkSize,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(s.core.cfg.Upload.SessionTTL()),
		Buffers:          make(map[int][]byte, totalChunks),
	}

	if err := s.core.store.insert(sess); err != nil {
		sessions, bytes := s.core.store.stats()
		logger.Warnw("Upload rejected at capacity ceiling",
			"owner_id", req.OwnerID, "live_sessions", sessions, "buffered_bytes", bytes)
		return nil, err
	}

	logger.Infow("Upload session created",
		"upload_id", sess.ID, "file_name", req.FileName, "size", req.FileSize, "total_chunks", totalChunks)
	return &domain.InitResult{
		UploadID:    sess.ID,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		ExpiresAt:   sess.ExpiresAt,
		Resumed:     false,
	}, nil
}

// tryResume returns the matched session's progress when a resumable
// session exists for the request's file identity.
func (s *initService) tryResume(req port.InitRequest) (*domain.InitResult, bool) {
	id, ok := s.core.store.findResumable(req.FileName, req.FileSize, req.OwnerID)
	if !ok {
		return nil, false
	}

	var result *domain.InitResult
	err := s.core.store.withSession(id, func(sess *domain.UploadSession) error {
		snap := sess.Progress()
		result = &domain.InitResult{
			UploadID:    sess.ID,
			ChunkSize:   sess.ChunkSize,
			TotalChunks: sess.TotalChunks,
			ExpiresAt:   sess.ExpiresAt,
			Resumed:     true,
			Progress:    &snap,
		}
		return nil
	})
	if err != nil {
		// Matched session vanished between lookup and lock; fall through
		// to creating a fresh one.
		return nil, false
	}

	logger.Infow("Upload session resumed by file identity",
		"upload_id", id, "file_name", req.FileName, "owner_id", req.OwnerID)
	return result, true
}

// cancel frees all buffers and removes the session. Unknown ids succeed.
func (s *initService) cancel(_ context.Context, uploadID string) error {
	sess, ok := s.core.store.remove(uploadID)
	if !ok {
		return nil
	}
	sess.Status = domain.StatusCancelled
	logger.Infow("Upload session cancelled", "upload_id", uploadID, "file_name", sess.FileName)
	return nil
}

// resume returns a failed session to uploading, keeping its buffers.
// Expired sessions are purged and reported as expired.
func (s *initService) resume(_ context.Context, uploadID string) (*domain.ProgressSnapshot, error) {
	var snap domain.ProgressSnapshot
	err := s.core.store.withSession(uploadID, func(sess *domain.UploadSession) error {
		if s.core.clock.Now().After(sess.ExpiresAt) {
			return port.ErrSessionExpired
		}
		if sess.Status == domain.StatusFailed {
			sess.Status = domain.StatusUploading
			sess.UpdatedAt = s.core.clock.Now()
			logger.Infow("Failed upload resumed", "upload_id", uploadID, "received_chunks", sess.ReceivedCount())
		}
		snap = sess.Progress()
		return nil
	})
	if err != nil {
		if err == port.ErrSessionExpired {
			s.core.store.remove(uploadID)
		}
		return nil, err
	}
	return &snap, nil
}
