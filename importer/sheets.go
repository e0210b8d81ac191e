package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/warp/inventory-ledger/ledger"
)

// SheetReader is the part of SheetSource the API layer depends on.
type SheetReader interface {
	Lines(ctx context.Context, spreadsheetID, sheetRange string) ([]ledger.BulkLine, []ledger.BulkFailure, error)
}

// SheetSource reads stock sheets with the official Google Sheets API.
type SheetSource struct {
	service *sheetsapi.Service
	logger  *zap.Logger
}

var _ SheetReader = (*SheetSource)(nil)

// NewSheetSource authenticates with a service account credentials file.
func NewSheetSource(ctx context.Context, credentialsPath string, logger *zap.Logger) (*SheetSource, error) {
	return NewSheetSourceWithOptions(ctx, logger,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope),
	)
}

// NewSheetSourceWithOptions builds a source from arbitrary client options
// (endpoint overrides in tests, alternative auth).
func NewSheetSourceWithOptions(ctx context.Context, logger *zap.Logger, opts ...option.ClientOption) (*SheetSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}
	return &SheetSource{service: service, logger: logger}, nil
}

// ReadRange fetches a rectangular data range from the spreadsheet.
func (s *SheetSource) ReadRange(ctx context.Context, spreadsheetID, sheetRange string) ([][]interface{}, error) {
	if spreadsheetID == "" || sheetRange == "" {
		return nil, fmt.Errorf("spreadsheet id and range must not be empty")
	}

	resp, err := s.service.Spreadsheets.Values.Get(spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", sheetRange, err)
	}

	s.logger.Debug("sheet range read",
		zap.String("spreadsheet_id", spreadsheetID),
		zap.String("range", sheetRange),
		zap.Int("rows", len(resp.Values)))
	return resp.Values, nil
}

// Lines reads a range and parses it with ParseRows.
func (s *SheetSource) Lines(ctx context.Context, spreadsheetID, sheetRange string) ([]ledger.BulkLine, []ledger.BulkFailure, error) {
	rows, err := s.ReadRange(ctx, spreadsheetID, sheetRange)
	if err != nil {
		return nil, nil, err
	}
	lines, failures := ParseRows(rows)
	return lines, failures, nil
}
