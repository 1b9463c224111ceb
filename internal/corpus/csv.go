package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var csvHeader = []string{"Title", "Author", "Source", "Published At", "Description", "Content", "URL", "Country", "Category"}

// CSVStore keeps the corpus in a tabular file, one row per article, keyed by
// title and URL. Saves write a sibling temp file and rename it over the
// target, so readers never observe a partial file.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore returns a store for path. The file is created on first save.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path implements FileBacked.
func (s *CSVStore) Path() string { return s.path }

// KeyPolicy implements Store.
func (s *CSVStore) KeyPolicy() KeyPolicy { return KeyTitleURL }

// Close implements Store.
func (s *CSVStore) Close() error { return nil }

// Load reads the corpus. A missing file is an empty corpus.
func (s *CSVStore) Load(ctx context.Context) (Corpus, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Corpus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()

	return ReadCSV(ctx, f)
}

// ReadCSV parses a corpus table. Columns are matched by header name, so
// files with extra or reordered columns load too.
func ReadCSV(ctx context.Context, r io.Reader) (Corpus, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Corpus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading corpus header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	get := func(row []string, name string) string {
		i, ok := col[strings.ToLower(name)]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var c Corpus
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading corpus row %d: %w", len(c)+2, err)
		}
		c = append(c, WithDerivedText(ArticleRecord{
			Title:       get(row, "Title"),
			Author:      get(row, "Author"),
			Source:      get(row, "Source"),
			PublishedAt: get(row, "Published At"),
			Description: get(row, "Description"),
			Content:     get(row, "Content"),
			URL:         get(row, "URL"),
			Country:     get(row, "Country"),
			Category:    get(row, "Category"),
		}))
	}
	return c, nil
}

// Save writes c atomically.
func (s *CSVStore) Save(ctx context.Context, c Corpus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating corpus directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp corpus file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("writing corpus header: %w", err)
	}
	for _, r := range c {
		row := []string{r.Title, r.Author, r.Source, r.PublishedAt, r.Description, r.Content, r.URL, r.Country, r.Category}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("writing corpus row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing corpus file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing corpus file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing corpus file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing corpus file: %w", err)
	}
	tmpName = ""
	return nil
}

// Stat implements Statter.
func (s *CSVStore) Stat(ctx context.Context) (Stat, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Stat{}, nil
	}
	if err != nil {
		return Stat{}, err
	}
	c, err := s.Load(ctx)
	if err != nil {
		return Stat{}, err
	}
	return Stat{Records: len(c), LastModified: info.ModTime()}, nil
}
