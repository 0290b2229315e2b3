package service

import (
	"fmt"
	"path"

	"github.com/google/uuid"
)

// buildObjectKey maps an owner and file name to a collision-free object
// store key. The uuid segment keeps re-uploads of the same name distinct.
func buildObjectKey(ownerID, fileName string) string {
	return path.Join("users", ownerID, uuid.NewString(), fileName)
}

// formatSessionID renders an allocated snowflake id as the wire session id.
func formatSessionID(id int64) string {
	return fmt.Sprintf("%d", id)
}
