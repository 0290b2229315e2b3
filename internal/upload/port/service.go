package port

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/domain"
)

var (
	// ErrSessionNotFound is returned for unknown or already swept session ids.
	ErrSessionNotFound = errors.New("upload session not found")
	// ErrSessionExpired is returned when a session passed its TTL; the
	// session is purged as a side effect.
	ErrSessionExpired = errors.New("upload session expired")
	// ErrAlreadyCompleted rejects writes against a completed session.
	ErrAlreadyCompleted = errors.New("upload already completed")
	// ErrRestartRequired rejects chunk writes against a failed session;
	// the caller must resume first.
	ErrRestartRequired = errors.New("upload failed, resume required")
	// ErrFinalizeInProgress rejects a second Complete racing an ongoing
	// object-store hand-off.
	ErrFinalizeInProgress = errors.New("upload finalization already in progress")
	// ErrInvalidChunkIndex rejects indices outside [0, totalChunks).
	ErrInvalidChunkIndex = errors.New("invalid chunk index")
	// ErrFileSizeInvalid rejects non-positive or over-limit declared sizes.
	ErrFileSizeInvalid = errors.New("invalid file size")
	// ErrChunkTooLarge rejects a chunk body exceeding the configured chunk size.
	ErrChunkTooLarge = errors.New("chunk exceeds configured chunk size")
	// ErrCapacityExceeded rejects new sessions once the aggregate buffered
	// bytes or live session ceiling is reached.
	ErrCapacityExceeded = errors.New("upload capacity exceeded")
	// ErrChunkCountMismatch rejects a totalChunks hint inconsistent with
	// the derived value.
	ErrChunkCountMismatch = errors.New("total chunks hint does not match declared size")
)

// IncompleteError reports a completion attempt with missing chunks. It
// carries the exact missing indices so the client can resubmit only those.
type IncompleteError struct {
	Missing []int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("upload incomplete: %d chunks missing", len(e.Missing))
}

// AssemblyError reports an internal bookkeeping mismatch found while
// concatenating buffers. It indicates a bug, not a client error.
type AssemblyError struct {
	Index int
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly failed: buffer for chunk %d missing", e.Index)
}

// StorageError wraps a failure of the external object store during
// hand-off. The session is left failed with buffers retained, so the
// operation is retryable after a resume.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("object store hand-off failed: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// InitRequest carries the parameters of a session initialization.
// TotalChunksHint, when non-zero, must agree with the size-derived count.
type InitRequest struct {
	FileName        string
	FileSize        int64
	FileType        string
	OwnerID         string
	FolderID        string
	TotalChunksHint int
}

// UploadService is the resumable chunked-upload engine.
//
// Resumption matches on (fileName, fileSize, ownerID). Two unrelated
// uploads of a same-named, same-sized file by one owner will share a
// session; this mirrors the product contract and is accepted as-is.
type UploadService interface {
	// Init starts a new session or returns the progress of a matching
	// resumable one.
	Init(ctx context.Context, req InitRequest) (*domain.InitResult, error)

	// UploadChunk ingests one chunk. Re-sending an already received index
	// is an idempotent no-op returning the unchanged snapshot.
	UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (*domain.ProgressSnapshot, error)

	// GetProgress returns the current snapshot.
	GetProgress(ctx context.Context, uploadID string) (*domain.ProgressSnapshot, error)

	// Complete assembles the chunks, hands the blob to the object store
	// and releases the buffers. On store failure the session is left
	// failed with buffers retained so Complete can be retried.
	Complete(ctx context.Context, uploadID string) (*domain.StoredFile, error)

	// Cancel frees the session's buffers and removes it. Cancelling an
	// unknown id is a no-op success.
	Cancel(ctx context.Context, uploadID string) error

	// Resume returns a failed session to uploading without touching its
	// buffers, and purges expired sessions.
	Resume(ctx context.Context, uploadID string) (*domain.ProgressSnapshot, error)

	// ListOwnerUploads returns snapshots of the owner's non-terminal sessions.
	ListOwnerUploads(ctx context.Context, ownerID string) ([]domain.ProgressSnapshot, error)
}
