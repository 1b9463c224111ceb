package corpus

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

// Open returns the store selected by cfg.Corpus.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Corpus.Backend {
	case config.BackendCSV:
		return NewCSVStore(cfg.Corpus.Path), nil
	case config.BackendSQLite:
		return OpenSQLiteStore(ctx, cfg.Corpus.Path)
	case config.BackendSheets:
		if config.IsPlaceholder(cfg.Sheets.SpreadsheetID) || config.IsPlaceholder(cfg.Sheets.Credentials.Value()) {
			return nil, errs.Configuration("corpus.open", fmt.Errorf("sheets backend needs SHEET_ID and GOOGLE_SHEETS_CREDENTIALS"))
		}
		store, err := OpenSheetStore(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.Sheet, cfg.Sheets.Credentials.Value())
		if err != nil {
			return nil, errs.Configuration("corpus.open", err)
		}
		return store, nil
	default:
		return nil, errs.Configuration("corpus.open", fmt.Errorf("unknown corpus backend %q", cfg.Corpus.Backend))
	}
}
