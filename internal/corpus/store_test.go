package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCorpus() Corpus {
	return MergePage(nil, okPage(
		raw("Rates hold", "https://news.example/rates"),
		RawArticle{
			Title:   "Quotes, \"commas\", and\nnewlines",
			URL:     "https://news.example/quotes",
			Content: "a, b, \"c\"",
			Country: "us", Category: "business",
		},
	), KeyTitleURL)
}

func TestCSVStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "all_news.csv")
	store := NewCSVStore(path)

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty, "missing file loads as empty corpus")

	want := sampleCorpus()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up after rename")

	st, err := store.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Records)
	assert.False(t, st.LastModified.IsZero())
	assert.Equal(t, path, store.Path())
}

func TestReadCSV_HeaderByName(t *testing.T) {
	in := "URL,Extra,Title,Content\nhttps://a,x,Alpha,body\n"
	c, err := ReadCSV(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, c, 1)
	assert.Equal(t, "Alpha", c[0].Title)
	assert.Equal(t, "https://a", c[0].URL)
	assert.Equal(t, "body", c[0].Content)
	assert.Contains(t, c[0].DerivedText, "Title: Alpha")
}

func TestSQLiteStore_RoundTripAndReplace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "news.db")
	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	want := sampleCorpus()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Saving a smaller corpus prunes rows and keeps the new order.
	smaller := Corpus{want[1]}
	require.NoError(t, store.Save(ctx, smaller))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, smaller, got)

	st, err := store.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Records)
	assert.False(t, st.LastModified.IsZero())
}

func TestSQLiteStore_MergeThroughStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "news.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	page := okPage(raw("A", "https://a"), raw("B", "https://b"), raw("C", "https://c"))
	for i := 0; i < 2; i++ {
		existing, err := store.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, MergePage(existing, page, store.KeyPolicy())))
	}

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

type fakeSheet struct {
	grid    [][]interface{}
	updates []string
	getErr  error
}

func (f *fakeSheet) Get(_ context.Context, _ string) ([][]interface{}, error) {
	return f.grid, f.getErr
}

func (f *fakeSheet) Update(_ context.Context, rng string, rows [][]interface{}) error {
	f.updates = append(f.updates, rng)
	f.grid = rows
	return nil
}

func TestSheetStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSheet{}
	store := newSheetStore(fake, "Sheet1")
	assert.Equal(t, KeyURL, store.KeyPolicy())

	c := MergePage(nil, okPage(raw("A", "https://a"), raw("B", "https://b")), KeyURL)
	require.NoError(t, store.Save(ctx, c))
	assert.Equal(t, []string{"Sheet1!A1:B3"}, fake.updates)
	assert.Equal(t, []interface{}{"Content", "URL"}, fake.grid[0])

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "https://a", loaded[0].URL)
	assert.Equal(t, SheetContent(c[0]), loaded[0].Content)

	// Round-tripped rows keep their prose content on the next save.
	require.NoError(t, store.Save(ctx, loaded))
	assert.Equal(t, SheetContent(c[0]), fake.grid[1][0])
}

func TestSheetStore_KeepsOnlyLinkedRecords(t *testing.T) {
	ctx := context.Background()
	store := newSheetStore(&fakeSheet{}, "Sheet1")

	c := MergePage(nil, okPage(raw("Only a title", ""), raw("Linked", "https://a")), store.KeyPolicy())
	require.NoError(t, store.Save(ctx, c))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(c))
	assert.Equal(t, "https://a", got[0].URL)
}

func TestSheetStore_PadsShrinkingGrid(t *testing.T) {
	fake := &fakeSheet{grid: [][]interface{}{
		{"Content", "URL"}, {"a", "https://a"}, {"b", "https://b"}, {"c", "https://c"},
	}}
	store := newSheetStore(fake, "Sheet1")

	require.NoError(t, store.Save(context.Background(), Corpus{{Content: "a", URL: "https://a"}}))
	require.Len(t, fake.grid, 4)
	assert.Equal(t, []interface{}{"", ""}, fake.grid[3])

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 1, "blank padding rows are skipped")
}

func TestSheetStore_LoadDedupesByURL(t *testing.T) {
	fake := &fakeSheet{grid: [][]interface{}{
		{"URL", "Content"}, {"https://a", "old"}, {"https://a", "new"},
	}}
	loaded, err := newSheetStore(fake, "Sheet1").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].Content)
}

func TestSheetStore_GetError(t *testing.T) {
	fake := &fakeSheet{getErr: fmt.Errorf("403")}
	_, err := newSheetStore(fake, "Sheet1").Load(context.Background())
	assert.Error(t, err)
}

func TestCredentialBytes(t *testing.T) {
	b, err := credentialBytes(` {"type":"service_account"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, string(b))

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"k":1}`), 0o600))
	b, err = credentialBytes(path)
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(b))

	_, err = credentialBytes(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
