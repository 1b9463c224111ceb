package corpus

import (
	"context"
	"time"
)

// Store persists a corpus. Save replaces the stored corpus atomically:
// concurrent readers see either the previous or the new corpus in full.
type Store interface {
	Load(ctx context.Context) (Corpus, error)
	Save(ctx context.Context, c Corpus) error
	KeyPolicy() KeyPolicy
	Close() error
}

// FileBacked is implemented by stores whose artifact is a local file, so
// the index watcher can observe it.
type FileBacked interface {
	Path() string
}

// Stat describes the stored artifact.
type Stat struct {
	Records      int       `json:"records"`
	LastModified time.Time `json:"last_modified"`
}

// Statter is implemented by stores that can report artifact metadata
// without a full load.
type Statter interface {
	Stat(ctx context.Context) (Stat, error)
}
