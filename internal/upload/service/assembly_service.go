package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/domain"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
	"github.com/anthanhphan/gosdk/logger"
)

// assemblyService concatenates received chunks and hands the blob off to
// the external object store.
type assemblyService struct {
	core *UploadServiceImpl
}

// newAssemblyService creates the completion use-case service.
func newAssemblyService(core *UploadServiceImpl) *assemblyService {
	return &assemblyService{core: core}
}

// complete assembles the session's chunks in index order and stores the
// result. The session sits in Finalizing while the store call runs, so the
// hand-off happens without holding the session lock; the commit back to
// Completed (or Failed) re-acquires it and tolerates a concurrent cancel.
func (s *assemblyService) complete(ctx context.Context, uploadID string) (*domain.StoredFile, error) {
	blob, sess, err := s.assemble(uploadID)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(blob)
	hash := hex.EncodeToString(sum[:])
	key := buildObjectKey(sess.OwnerID, sess.FileName)

	var objectRef string
	storeErr := s.core.breaker.Execute(ctx, func(execCtx context.Context) error {
		ref, err := s.core.objects.Store(execCtx, key, blob, sess.FileType)
		if err != nil {
			return err
		}
		objectRef = ref
		return nil
	})
	if storeErr != nil {
		s.failSession(uploadID, storeErr)
		return nil, &port.StorageError{Err: storeErr}
	}

	s.commitCompleted(uploadID, hash)
	logger.Infow("Upload completed",
		"upload_id", uploadID, "object_ref", objectRef, "size", len(blob), "hash", hash)

	return &domain.StoredFile{
		ObjectRef: objectRef,
		FileName:  sess.FileName,
		FileSize:  int64(len(blob)),
		FileType:  sess.FileType,
		Hash:      hash,
		OwnerID:   sess.OwnerID,
		FolderID:  sess.FolderID,
	}, nil
}

// assemble validates completeness and concatenates buffers under the
// session lock, flipping the session into Finalizing. It returns a copy of
// the identity fields so the hand-off never touches the locked session.
func (s *assemblyService) assemble(uploadID string) ([]byte, *domain.UploadSession, error) {
	var blob []byte
	var identity domain.UploadSession

	err := s.core.store.withSession(uploadID, func(sess *domain.UploadSession) error {
		if s.core.clock.Now().After(sess.ExpiresAt) {
			return port.ErrSessionExpired
		}
		switch sess.Status {
		case domain.StatusCompleted:
			return port.ErrAlreadyCompleted
		case domain.StatusFailed:
			return port.ErrRestartRequired
		case domain.StatusFinalizing:
			return port.ErrFinalizeInProgress
		}

		if sess.ReceivedCount() != sess.TotalChunks {
			return &port.IncompleteError{Missing: sess.MissingIndices()}
		}

		blob = make([]byte, 0, sess.ReceivedBytes)
		for i := 0; i < sess.TotalChunks; i++ {
			buf, ok := sess.Buffers[i]
			if !ok {
				// Count matched but an index is absent: bookkeeping bug.
				return &port.AssemblyError{Index: i}
			}
			blob = append(blob, buf...)
		}

		delta := int64(len(blob)) - sess.DeclaredFileSize
		if delta < 0 {
			delta = -delta
		}
		if tolerance := s.core.cfg.Upload.SizeToleranceBytes; delta > tolerance {
			// Loose check only. Last-chunk rounding makes exact equality
			// too strict, and the blob is already fully received, so a
			// mismatch is logged instead of aborting the hand-off.
			logger.Warnw("Assembled size deviates from declared size",
				"upload_id", uploadID, "assembled", len(blob),
				"declared", sess.DeclaredFileSize, "tolerance", tolerance)
		}

		sess.Status = domain.StatusFinalizing
		sess.UpdatedAt = s.core.clock.Now()
		identity = *sess
		return nil
	})
	if err != nil {
		if err == port.ErrSessionExpired {
			s.core.store.remove(uploadID)
		}
		return nil, nil, err
	}
	return blob, &identity, nil
}

// commitCompleted transitions Finalizing to Completed and releases the
// buffers. When a cancel or reaper sweep removed the session during the
// hand-off the buffers are already freed and there is nothing to commit;
// the stored object remains valid either way.
func (s *assemblyService) commitCompleted(uploadID string, hash string) {
	var freed int64
	err := s.core.store.withSession(uploadID, func(sess *domain.UploadSession) error {
		freed = sess.ReceivedBytes
		sess.Buffers = nil
		sess.ReceivedBytes = 0
		sess.Status = domain.StatusCompleted
		sess.FinalHash = hash
		sess.UpdatedAt = s.core.clock.Now()
		return nil
	})
	if err != nil {
		logger.Warnw("Session removed during finalization, object already stored", "upload_id", uploadID)
		return
	}
	if freed > 0 {
		s.core.store.addBufferedBytes(-freed)
	}
}

// failSession marks the session failed, retaining buffers so a retry after
// Resume does not re-upload chunks.
func (s *assemblyService) failSession(uploadID string, cause error) {
	err := s.core.store.withSession(uploadID, func(sess *domain.UploadSession) error {
		sess.Status = domain.StatusFailed
		sess.UpdatedAt = s.core.clock.Now()
		return nil
	})
	if err != nil {
		logger.Warnw("Session removed during failed finalization", "upload_id", uploadID)
		return
	}
	logger.Errorw("Object store hand-off failed, session kept for retry",
		"upload_id", uploadID, "error", cause.Error())
}
