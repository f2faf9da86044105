package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptoreport/logger"
	"cryptoreport/models"
)

type fakeSheets struct {
	calls   []string
	header  []interface{}
	columns int
	rows    [][]interface{}
	failOn  string
}

func (f *fakeSheets) record(op string) error {
	f.calls = append(f.calls, op)
	if f.failOn == op {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeSheets) Open(ctx context.Context, name string) (SheetTarget, error) {
	return SheetTarget{SpreadsheetID: "sheet-1", SheetID: 0, Title: "Sheet1"}, f.record(OpOpen)
}

func (f *fakeSheets) Clear(ctx context.Context, t SheetTarget) error {
	return f.record(OpClear)
}

func (f *fakeSheets) WriteHeader(ctx context.Context, t SheetTarget, header []interface{}) error {
	f.header = header
	return f.record(OpHeader)
}

func (f *fakeSheets) BoldHeader(ctx context.Context, t SheetTarget, columns int) error {
	f.columns = columns
	return f.record(OpFormat)
}

func (f *fakeSheets) AppendRows(ctx context.Context, t SheetTarget, rows [][]interface{}) error {
	f.rows = rows
	return f.record(OpAppend)
}

func mirrorSnapshot() models.Snapshot {
	return models.NewSnapshot(time.Now(), []models.Asset{
		{
			Name: "Bitcoin", Symbol: "btc",
			CurrentPrice: decimal.RequireFromString("67000.5"), MarketCap: decimal.NewFromInt(1320000000000),
			TotalVolume:              decimal.NewFromInt(25000000000),
			PriceChangePercentage24h: decimal.NewNullDecimal(decimal.RequireFromString("1.25")),
		},
		{
			Name: "Tether", Symbol: "usdt",
			CurrentPrice: decimal.NewFromInt(1), MarketCap: decimal.NewFromInt(110000000000),
			TotalVolume: decimal.NewFromInt(50000000000),
		},
	})
}

func TestMirrorSnapshotOrder(t *testing.T) {
	api := &fakeSheets{}
	m := NewSheetMirrorWithAPI(api, "Live Crypto", logger.Logger())

	if err := m.MirrorSnapshot(context.Background(), mirrorSnapshot()); err != nil {
		t.Fatalf("mirror: %v", err)
	}

	want := []string{OpOpen, OpClear, OpHeader, OpFormat, OpAppend}
	if len(api.calls) != len(want) {
		t.Fatalf("unexpected calls %v", api.calls)
	}
	for i := range want {
		if api.calls[i] != want[i] {
			t.Fatalf("call %d = %s, want %s", i, api.calls[i], want[i])
		}
	}
	if len(api.header) != 6 || api.header[0] != "Cryptocurrency Name" || api.header[5] != "Price Change (24h %)" {
		t.Fatalf("unexpected header %v", api.header)
	}
	if api.columns != 6 {
		t.Fatalf("expected bold over 6 columns, got %d", api.columns)
	}
	if len(api.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(api.rows))
	}
	if api.rows[0][5] != 1.25 {
		t.Fatalf("unexpected change cell %v", api.rows[0][5])
	}
	if api.rows[1][5] != "" {
		t.Fatalf("missing change should be empty, got %v", api.rows[1][5])
	}
}

func TestMirrorSnapshotWrapsFailure(t *testing.T) {
	api := &fakeSheets{failOn: OpFormat}
	m := NewSheetMirrorWithAPI(api, "Live Crypto", logger.Logger())

	err := m.MirrorSnapshot(context.Background(), mirrorSnapshot())
	var me *MirrorError
	if !errors.As(err, &me) || me.Op != OpFormat {
		t.Fatalf("expected format MirrorError, got %v", err)
	}
	if api.calls[len(api.calls)-1] != OpFormat {
		t.Fatalf("mirror continued after failure: %v", api.calls)
	}
}

func TestMirrorEmptySnapshotSkipsAppend(t *testing.T) {
	api := &fakeSheets{}
	m := NewSheetMirrorWithAPI(api, "Live Crypto", logger.Logger())

	if err := m.MirrorSnapshot(context.Background(), models.NewSnapshot(time.Now(), nil)); err != nil {
		t.Fatalf("mirror: %v", err)
	}
	for _, c := range api.calls {
		if c == OpAppend {
			t.Fatalf("append should be skipped for an empty snapshot")
		}
	}
}

func TestDriveNameQueryEscapes(t *testing.T) {
	got := driveNameQuery(`O'Brien\Live`)
	want := `name = 'O\'Brien\\Live' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false`
	if got != want {
		t.Fatalf("query = %s, want %s", got, want)
	}
}
