package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"cryptoreport/config"
	"cryptoreport/logger"
	"cryptoreport/models"
)

const (
	OpOpen   = "open"
	OpClear  = "clear"
	OpHeader = "header"
	OpFormat = "format"
	OpAppend = "append"

	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
)

// SheetHeaders is the first row written to the mirror.
var SheetHeaders = []string{
	"Cryptocurrency Name",
	"Symbol",
	"Current Price (USD)",
	"Market Capitalization (USD)",
	"24h Trading Volume (USD)",
	"Price Change (24h %)",
}

// MirrorError reports which spreadsheet operation failed.
type MirrorError struct {
	Op  string
	Err error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("sheet mirror %s: %v", e.Op, e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }

// SheetTarget identifies the worksheet being mirrored into.
type SheetTarget struct {
	SpreadsheetID string
	SheetID       int64
	Title         string
}

// SheetAPI is the subset of the Sheets and Drive APIs the mirror needs.
type SheetAPI interface {
	Open(ctx context.Context, name string) (SheetTarget, error)
	Clear(ctx context.Context, target SheetTarget) error
	WriteHeader(ctx context.Context, target SheetTarget, header []interface{}) error
	BoldHeader(ctx context.Context, target SheetTarget, columns int) error
	AppendRows(ctx context.Context, target SheetTarget, rows [][]interface{}) error
}

// SheetMirror republishes each snapshot into a named spreadsheet: clear,
// header, bold header, one row per asset.
type SheetMirror struct {
	api  SheetAPI
	name string
	log  *logger.Log
}

// NewSheetMirror connects to Google Sheets with the service-account JSON in
// cfg.Credentials.
func NewSheetMirror(ctx context.Context, cfg config.SheetConfig, log *logger.Log) (*SheetMirror, error) {
	if len(cfg.Credentials) == 0 {
		return nil, &MirrorError{Op: OpOpen, Err: errors.New("service account credentials are empty")}
	}
	api, err := newGoogleSheets(ctx,
		option.WithCredentialsJSON(cfg.Credentials),
		option.WithScopes(sheets.SpreadsheetsScope, drive.DriveScope),
	)
	if err != nil {
		return nil, &MirrorError{Op: OpOpen, Err: err}
	}
	return NewSheetMirrorWithAPI(api, cfg.SpreadsheetName, log), nil
}

// NewSheetMirrorWithAPI builds a mirror on top of an existing API client.
func NewSheetMirrorWithAPI(api SheetAPI, name string, log *logger.Log) *SheetMirror {
	if log == nil {
		log = logger.GetLogger()
	}
	return &SheetMirror{api: api, name: name, log: log}
}

// MirrorSnapshot replaces the sheet contents with the snapshot rows.
func (m *SheetMirror) MirrorSnapshot(ctx context.Context, s models.Snapshot) error {
	log := m.log.WithComponent("sheet_mirror").WithFields(logger.Fields{
		"spreadsheet": m.name,
		"rows":        s.Len(),
	})
	start := time.Now()

	target, err := m.api.Open(ctx, m.name)
	if err != nil {
		return &MirrorError{Op: OpOpen, Err: err}
	}
	if err := m.api.Clear(ctx, target); err != nil {
		return &MirrorError{Op: OpClear, Err: err}
	}

	header := make([]interface{}, len(SheetHeaders))
	for i, h := range SheetHeaders {
		header[i] = h
	}
	if err := m.api.WriteHeader(ctx, target, header); err != nil {
		return &MirrorError{Op: OpHeader, Err: err}
	}
	if err := m.api.BoldHeader(ctx, target, len(SheetHeaders)); err != nil {
		return &MirrorError{Op: OpFormat, Err: err}
	}

	if s.Len() > 0 {
		if err := m.api.AppendRows(ctx, target, SheetRows(s)); err != nil {
			return &MirrorError{Op: OpAppend, Err: err}
		}
	}

	logger.LogPerformanceEntry(log, "sheet_mirror", "mirror_snapshot", time.Since(start), nil)
	logger.LogDataFlowEntry(log, "snapshot", "spreadsheet", s.Len(), "rows")
	return nil
}

// SheetRows converts assets to sheet cells in header order. A missing 24h
// change becomes an empty cell.
func SheetRows(s models.Snapshot) [][]interface{} {
	rows := make([][]interface{}, 0, s.Len())
	for _, a := range s.Assets {
		var change interface{} = ""
		if a.HasPriceChange() {
			change = a.PriceChangePercentage24h.Decimal.InexactFloat64()
		}
		rows = append(rows, []interface{}{
			a.Name,
			a.Symbol,
			a.CurrentPrice.InexactFloat64(),
			a.MarketCap.InexactFloat64(),
			a.TotalVolume.InexactFloat64(),
			change,
		})
	}
	return rows
}

type googleSheets struct {
	sheets *sheets.Service
	drive  *drive.Service
}

func newGoogleSheets(ctx context.Context, opts ...option.ClientOption) (*googleSheets, error) {
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return &googleSheets{sheets: sheetsSvc, drive: driveSvc}, nil
}

func (g *googleSheets) Open(ctx context.Context, name string) (SheetTarget, error) {
	list, err := g.drive.Files.List().Q(driveNameQuery(name)).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return SheetTarget{}, fmt.Errorf("failed to look up spreadsheet %q: %w", name, err)
	}
	if len(list.Files) == 0 {
		return SheetTarget{}, fmt.Errorf("spreadsheet %q not found or not shared with the service account", name)
	}

	id := list.Files[0].Id
	ss, err := g.sheets.Spreadsheets.Get(id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return SheetTarget{}, fmt.Errorf("failed to read spreadsheet %s: %w", id, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return SheetTarget{}, fmt.Errorf("spreadsheet %s has no worksheets", id)
	}
	props := ss.Sheets[0].Properties
	return SheetTarget{SpreadsheetID: id, SheetID: props.SheetId, Title: props.Title}, nil
}

var driveQueryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// driveNameQuery finds a live spreadsheet by exact name. Drive query string
// literals escape backslash and single quote with a backslash.
func driveNameQuery(name string) string {
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		driveQueryEscaper.Replace(name), spreadsheetMimeType)
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func (g *googleSheets) Clear(ctx context.Context, t SheetTarget) error {
	_, err := g.sheets.Spreadsheets.Values.Clear(t.SpreadsheetID, quoteTitle(t.Title), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (g *googleSheets) WriteHeader(ctx context.Context, t SheetTarget, header []interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{header}}
	_, err := g.sheets.Spreadsheets.Values.Update(t.SpreadsheetID, quoteTitle(t.Title)+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (g *googleSheets) BoldHeader(ctx context.Context, t SheetTarget, columns int) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          t.SheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(columns),
					ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat.bold",
			},
		}},
	}
	_, err := g.sheets.Spreadsheets.BatchUpdate(t.SpreadsheetID, req).Context(ctx).Do()
	return err
}

func (g *googleSheets) AppendRows(ctx context.Context, t SheetTarget, rows [][]interface{}) error {
	vr := &sheets.ValueRange{Values: rows}
	_, err := g.sheets.Spreadsheets.Values.Append(t.SpreadsheetID, quoteTitle(t.Title)+"!A1", vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}
