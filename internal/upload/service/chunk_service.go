package service

import (
	"context"
	"fmt"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/domain"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
)

// chunkService ingests chunks and serves progress snapshots.
type chunkService struct {
	core *UploadServiceImpl
}

// newChunkService creates the chunk-ingestion use-case service.
func newChunkService(core *UploadServiceImpl) *chunkService {
	return &chunkService{core: core}
}

// uploadChunk stores one chunk under the session lock. Retransmissions of
// an already-received index are idempotent no-ops so client retries can
// never corrupt the received-byte accounting.
func (s *chunkService) uploadChunk(_ context.Context, uploadID string, index int, data []byte) (*domain.ProgressSnapshot, error) {
	var snap domain.ProgressSnapshot
	var storedBytes int64

	err := s.core.store.withSession(uploadID, func(sess *domain.UploadSession) error {
		if s.core.clock.Now().After(sess.ExpiresAt) {
			return port.ErrSessionExpired
		}

		switch sess.Status {
		case domain.StatusCompleted:
			return port.ErrAlreadyCompleted
		case domain.StatusFailed:
			return port.ErrRestartRequired
		}

		if index < 0 || index >= sess.TotalChunks {
			return fmt.Errorf("%w: index=%d total=%d", port.ErrInvalidChunkIndex, index, sess.TotalChunks)
		}
		// Server-side bound, independent of any client-declared length.
		if int64(len(data)) > sess.ChunkSize {
			return fmt.Errorf("%w: got=%d max=%d", port.ErrChunkTooLarge, len(data), sess.ChunkSize)
		}

		if _, ok := sess.Buffers[index]; ok {
			snap = sess.Progress()
			return nil
		}

		buf := make([]byte, len(data))
		copy(buf, data)
		sess.Buffers[index] = buf
		sess.ReceivedBytes += int64(len(buf))
		storedBytes = int64(len(buf))
		if sess.Status == domain.StatusPending {
			sess.Status = domain.StatusUploading
		}
		sess.UpdatedAt = s.core.clock.Now()

		snap = sess.Progress()
		return nil
	})
	if err != nil {
		if err == port.ErrSessionExpired {
			s.core.store.remove(uploadID)
		}
		return nil, err
	}

	if storedBytes > 0 {
		s.core.store.addBufferedBytes(storedBytes)
	}
	return &snap, nil
}

// getProgress returns the current snapshot. An expired session is purged
// rather than served, matching the write-path boundary.
func (s *chunkService) getProgress(_ context.Context, uploadID string) (*domain.ProgressSnapshot, error) {
	var snap domain.ProgressSnapshot
	err := s.core.store.withSession(uploadID, func(sess *domain.UploadSession) error {
		if s.core.clock.Now().After(sess.ExpiresAt) {
			return port.ErrSessionExpired
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
