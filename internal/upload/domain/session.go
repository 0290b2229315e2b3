package domain

import "time"

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusUploading  SessionStatus = "uploading"
	StatusFinalizing SessionStatus = "finalizing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// Failed is not terminal: a resume moves it back to Uploading.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// UploadSession tracks one in-progress chunked upload. The identity fields
// are immutable after creation; everything else mutates only under the
// session's registry lock.
type UploadSession struct {
	ID               string        `json:"id"`
	FileName         string        `json:"file_name"`
	DeclaredFileSize int64         `json:"declared_file_size"`
	FileType         string        `json:"file_type"`
	OwnerID          string        `json:"owner_id"`
	FolderID         string        `json:"folder_id,omitempty"`
	TotalChunks      int           `json:"total_chunks"`
	ChunkSize        int64         `json:"chunk_size"`
	Status           SessionStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	ExpiresAt        time.Time     `json:"expires_at"`

	// Buffers maps chunk index to the received bytes. A session owns its
	// buffers exclusively until they are released on completion, cancel
	// or expiry. ReceivedBytes always equals the sum of buffer lengths.
	Buffers       map[int][]byte `json:"-"`
	ReceivedBytes int64          `json:"received_bytes"`

	// FinalHash is set only after a successful assembly.
	FinalHash string `json:"final_hash,omitempty"`
}

// ReceivedCount returns the number of distinct chunk indices received.
func (s *UploadSession) ReceivedCount() int {
	return len(s.Buffers)
}

// MissingIndices returns the sorted chunk indices not yet received.
func (s *UploadSession) MissingIndices() []int {
	missing := make([]int, 0)
	for i := 0; i < s.TotalChunks; i++ {
		if _, ok := s.Buffers[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Progress builds a point-in-time snapshot of the session.
func (s *UploadSession) Progress() ProgressSnapshot {
	received := s.ReceivedCount()
	percent := 0.0
	if s.TotalChunks > 0 {
		percent = float64(received) / float64(s.TotalChunks) * 100
	}
	return ProgressSnapshot{
		UploadID:       s.ID,
		Status:         s.Status,
		ReceivedCount:  received,
		TotalChunks:    s.TotalChunks,
		ReceivedBytes:  s.ReceivedBytes,
		MissingIndices: s.MissingIndices(),
		Percent:        percent,
		IsComplete:     received == s.TotalChunks,
		ExpiresAt:      s.ExpiresAt,
	}
}

// ProgressSnapshot reports upload progress to the client.
type ProgressSnapshot struct {
	UploadID       string        `json:"upload_id"`
	Status         SessionStatus `json:"status"`
	ReceivedCount  int           `json:"received_count"`
	TotalChunks    int           `json:"total_chunks"`
	ReceivedBytes  int64         `json:"received_bytes"`
	MissingIndices []int         `json:"missing_indices"`
	Percent        float64       `json:"percent"`
	IsComplete     bool          `json:"is_complete"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// InitResult is returned by session initialization. Resumed is true when
// an existing non-terminal session matched instead of a new one being made.
type InitResult struct {
	UploadID    string            `json:"upload_id"`
	ChunkSize   int64             `json:"chunk_size"`
	TotalChunks int               `json:"total_chunks"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Resumed     bool              `json:"resumed"`
	Progress    *ProgressSnapshot `json:"progress,omitempty"`
}

// StoredFile describes the durably stored result of a completed upload.
type StoredFile struct {
	ObjectRef string `json:"object_ref"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	FileType  string `json:"file_type"`
	Hash      string `json:"hash"`
	OwnerID   string `json:"owner_id"`
	FolderID  string `json:"folder_id,omitempty"`
}
