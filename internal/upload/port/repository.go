package port

import (
	"context"
)

//go:generate mockgen -destination=../service/mocks/collaborators_mock.go -package=mocks -source=repository.go

// ObjectStore is the external blob-delivery service. It durably stores an
// assembled blob and returns an opaque reference to it.
type ObjectStore interface {
	Store(ctx context.Context, key string, blob []byte, contentType string) (objectRef string, err error)
}

// FileRecorder persists the final file record once an object reference
// exists. It is invoked by the transport layer after Complete succeeds.
type FileRecorder interface {
	CreateFileRecord(ctx context.Context, objectRef, fileName string, size int64, fileType, ownerID, folderID string) (fileID string, err error)
}

// IDGenerator allocates unique session identifiers.
type IDGenerator interface {
	Next() (int64, error)
}
