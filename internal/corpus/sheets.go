package corpus

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var sheetHeader = []interface{}{"Content", "URL"}

// sheetValues is the slice of the Sheets values API the store needs.
type sheetValues interface {
	Get(ctx context.Context, rng string) ([][]interface{}, error)
	Update(ctx context.Context, rng string, rows [][]interface{}) error
}

// SheetStore keeps the corpus in a remote spreadsheet with columns
// Content and URL, keyed by URL.
//
// Save writes the whole grid in a single values.update call, padding with
// blank rows when the previous grid was longer, so a reader never sees a
// cleared sheet.
type SheetStore struct {
	values sheetValues
	sheet  string
}

// OpenSheetStore authenticates with service-account credentials and returns
// a store for the named sheet. credentials is either the JSON key itself or
// a path to it.
func OpenSheetStore(ctx context.Context, spreadsheetID, sheet, credentials string) (*SheetStore, error) {
	keyJSON, err := credentialBytes(credentials)
	if err != nil {
		return nil, err
	}

	jwt, err := google.JWTConfigFromJSON(keyJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}

	return newSheetStore(&apiValues{svc: svc, spreadsheetID: spreadsheetID}, sheet), nil
}

func newSheetStore(values sheetValues, sheet string) *SheetStore {
	return &SheetStore{values: values, sheet: sheet}
}

func credentialBytes(credentials string) ([]byte, error) {
	trimmed := strings.TrimSpace(credentials)
	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}
	b, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf("reading service account credentials: %w", err)
	}
	return b, nil
}

// KeyPolicy implements Store.
func (s *SheetStore) KeyPolicy() KeyPolicy { return KeyURL }

// Close implements Store.
func (s *SheetStore) Close() error { return nil }

// Load implements Store. Rows without a URL are skipped.
func (s *SheetStore) Load(ctx context.Context) (Corpus, error) {
	rows, err := s.values.Get(ctx, s.sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", s.sheet, err)
	}
	if len(rows) == 0 {
		return Corpus{}, nil
	}

	contentCol, urlCol := 0, 1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(fmt.Sprint(h))) {
		case "content":
			contentCol = i
		case "url":
			urlCol = i
		}
	}

	c := make(Corpus, 0, len(rows)-1)
	for _, row := range rows[1:] {
		url := cell(row, urlCol)
		if url == "" {
			continue
		}
		c = append(c, WithDerivedText(ArticleRecord{Content: cell(row, contentCol), URL: url}))
	}
	return Dedupe(c, KeyURL), nil
}

// Save implements Store.
func (s *SheetStore) Save(ctx context.Context, c Corpus) error {
	previous, err := s.values.Get(ctx, s.sheet)
	if err != nil {
		return fmt.Errorf("reading sheet %s before save: %w", s.sheet, err)
	}

	grid := make([][]interface{}, 0, max(len(c)+1, len(previous)))
	grid = append(grid, sheetHeader)
	for _, r := range c {
		grid = append(grid, []interface{}{SheetContent(r), r.URL})
	}
	for len(grid) < len(previous) {
		grid = append(grid, []interface{}{"", ""})
	}

	rng := fmt.Sprintf("%s!A1:B%d", s.sheet, len(grid))
	if err := s.values.Update(ctx, rng, grid); err != nil {
		return fmt.Errorf("writing sheet %s: %w", s.sheet, err)
	}
	return nil
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

// apiValues adapts *sheets.Service to sheetValues.
type apiValues struct {
	svc           *sheets.Service
	spreadsheetID string
}

func (a *apiValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(a.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *apiValues) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	_, err := a.svc.Spreadsheets.Values.Update(a.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
