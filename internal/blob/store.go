// Package blob defines the blob file service contract (3.2 E, 6.2): a
// logical-path keyed byte store, plus a blob appender that packs many
// small payloads into size-bounded blob files so persisting a scene with
// thousands of small binary fields does not create one store object per
// field.
package blob

import "context"

// Store is the blob file service contract the core consumes (6.2).
// Implementations: gcsblob (production, Google Cloud Storage) and memblob
// (in-memory fake used by tests).
type Store interface {
	// Put writes data under logicalName, creating or overwriting it.
	Put(ctx context.Context, logicalName string, data []byte) error
	// Get reads the full contents of logicalName.
	Get(ctx context.Context, logicalName string) ([]byte, error)
	// GetRange reads [offset, offset+length) of logicalName, used to read
	// one packed payload out of a blob file without downloading the whole
	// file.
	GetRange(ctx context.Context, logicalName string, offset, length int64) ([]byte, error)
	// Delete removes logicalName. Used when a revision's blobs are
	// garbage-collected; not required for the commit path itself.
	Delete(ctx context.Context, logicalName string) error
}

// LogicalName builds the deterministic logical path for a payload
// belonging to one node's field (6.2: "/{db}/{project}/{unique_id}_{label}").
func LogicalName(database, project, uniqueID, label string) string {
	return "/" + database + "/" + project + "/" + uniqueID + "_" + label
}
