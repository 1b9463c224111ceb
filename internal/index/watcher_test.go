package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsrag/internal/corpus"
)

// memStore is a corpus store without a backing file.
type memStore struct {
	mu sync.Mutex
	c  corpus.Corpus
}

func (m *memStore) Load(context.Context) (corpus.Corpus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(corpus.Corpus(nil), m.c...), nil
}

func (m *memStore) Save(_ context.Context, c corpus.Corpus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = c
	return nil
}

func (m *memStore) KeyPolicy() corpus.KeyPolicy { return corpus.KeyTitleURL }
func (m *memStore) Close() error                { return nil }

func runWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func TestWatcher_ReindexesOnFileChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "news.csv")
	store := corpus.NewCSVStore(path)
	require.NoError(t, store.Save(ctx, testCorpus()[:1]))

	idx := newTestStore(t, newCountingEmbedder(t))
	_, err := idx.Index(ctx, testCorpus()[:1])
	require.NoError(t, err)

	runWatcher(t, NewWatcher(store, idx, nil, WithDebounce(20*time.Millisecond)))

	// The watch is registered asynchronously, so keep saving until the
	// change is observed.
	require.Eventually(t, func() bool {
		if idx.Current().Version() > 1 {
			return true
		}
		_ = store.Save(ctx, testCorpus())
		return false
	}, 5*time.Second, 100*time.Millisecond)

	snap := idx.Current()
	assert.Equal(t, 3, snap.Stats().Documents)
	assert.NotEmpty(t, snap.Lexical("qubits", 5))
}

func TestWatcher_PollsStoresWithoutFile(t *testing.T) {
	ctx := context.Background()
	store := &memStore{c: testCorpus()[:2]}

	idx := newTestStore(t, newCountingEmbedder(t))
	_, err := idx.Index(ctx, store.c)
	require.NoError(t, err)

	runWatcher(t, NewWatcher(store, idx, nil, WithPollInterval(10*time.Millisecond)))

	require.NoError(t, store.Save(ctx, testCorpus()))
	require.Eventually(t, func() bool {
		return idx.Current().Stats().Documents == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_StatSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "news.csv")
	store := corpus.NewCSVStore(path)
	require.NoError(t, store.Save(ctx, testCorpus()))

	w := NewWatcher(store, nil, nil)
	assert.False(t, w.unchanged(ctx), "first check records the stat")
	assert.True(t, w.unchanged(ctx))
}

func TestWatcher_SQLiteWALCommits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "news.db")

	// The daemon and the server hold separate connections to one database.
	writer, err := corpus.OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	reader, err := corpus.OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	require.NoError(t, writer.Save(ctx, testCorpus()[:1]))
	initial, err := reader.Load(ctx)
	require.NoError(t, err)

	idx := newTestStore(t, newCountingEmbedder(t))
	_, err = idx.Index(ctx, initial)
	require.NoError(t, err)

	runWatcher(t, NewWatcher(reader, idx, nil, WithDebounce(20*time.Millisecond)))

	require.Eventually(t, func() bool {
		if idx.Current().Version() > 1 && idx.Current().Stats().Documents == 3 {
			return true
		}
		_ = writer.Save(ctx, testCorpus())
		return false
	}, 5*time.Second, 100*time.Millisecond)
}

func TestCorpusEvent(t *testing.T) {
	path := filepath.Join("data", "news.db")
	assert.True(t, corpusEvent(path, path))
	assert.True(t, corpusEvent(path+"-wal", path))
	assert.False(t, corpusEvent(path+"-shm", path))
	assert.False(t, corpusEvent(filepath.Join("data", ".news.db.tmp"), path))
}

func TestWatcher_CreatesMissingDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "all_news.csv")
	store := corpus.NewCSVStore(path)

	idx := newTestStore(t, newCountingEmbedder(t))
	runWatcher(t, NewWatcher(store, idx, nil, WithDebounce(20*time.Millisecond)))

	require.Eventually(t, func() bool {
		if cur := idx.Current(); cur != nil && cur.Stats().Documents == 3 {
			return true
		}
		_ = store.Save(ctx, testCorpus())
		return false
	}, 5*time.Second, 100*time.Millisecond)
}

func TestWatcher_UncreatableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := corpus.NewCSVStore(filepath.Join(blocker, "news.csv"))
	idx := newTestStore(t, newCountingEmbedder(t))

	err := NewWatcher(store, idx, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrWatcherFailed)
}
