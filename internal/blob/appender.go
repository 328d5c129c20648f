package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MaxActiveBlobBytes is the size a blob file is allowed to grow to before
// it is sealed and a new one is started (4.4 step 3: "100 MiB").
const MaxActiveBlobBytes = 100 * 1024 * 1024

// Ref locates one payload inside a sealed blob file.
type Ref struct {
	FileName string
	Offset   int64
	Length   int64
}

// Appender packs many small payloads into size-bounded blob files so a
// commit with thousands of binary fields does not create one store object
// per field (3.2 E). Append and Flush serialise on an internal mutex, so
// one Appender may be shared by concurrent callers.
type Appender struct {
	mu       sync.Mutex
	store    Store
	database string
	project  string

	activeName string
	activeBuf  []byte
}

// NewAppender returns an Appender that uploads sealed blobs under
// /{database}/{project}/ via store.
func NewAppender(store Store, database, project string) *Appender {
	return &Appender{store: store, database: database, project: project}
}

// Append packs payload into the active blob, sealing and uploading it
// first if it is already full. It returns the Ref recording where the
// payload landed.
func (a *Appender) Append(ctx context.Context, payload []byte) (Ref, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.activeName == "" {
		a.startNewBlobLocked()
	} else if int64(len(a.activeBuf)+len(payload)) > MaxActiveBlobBytes && len(a.activeBuf) > 0 {
		if err := a.sealLocked(ctx); err != nil {
			return Ref{}, err
		}
		a.startNewBlobLocked()
	}

	ref := Ref{
		FileName: a.activeName,
		Offset:   int64(len(a.activeBuf)),
		Length:   int64(len(payload)),
	}
	a.activeBuf = append(a.activeBuf, payload...)
	return ref, nil
}

// Flush seals and uploads whatever blob is currently active. Callers must
// call Flush once after the last Append of a commit so the final partial
// blob is not lost.
func (a *Appender) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeName == "" || len(a.activeBuf) == 0 {
		return nil
	}
	return a.sealLocked(ctx)
}

func (a *Appender) startNewBlobLocked() {
	a.activeName = LogicalName(a.database, a.project, uuid.NewString(), "blob.bin")
	a.activeBuf = a.activeBuf[:0]
}

func (a *Appender) sealLocked(ctx context.Context) error {
	if err := a.store.Put(ctx, a.activeName, a.activeBuf); err != nil {
		return fmt.Errorf("seal blob %q: %w", a.activeName, err)
	}
	a.activeName = ""
	a.activeBuf = nil
	return nil
}
