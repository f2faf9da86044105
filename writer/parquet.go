package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"cryptoreport/config"
	"cryptoreport/logger"
	"cryptoreport/models"
)

// ErrExport marks a failed snapshot export.
var ErrExport = errors.New("snapshot export failed")

// ParquetRecord represents one asset row of the exported snapshot
type ParquetRecord struct {
	FetchedAt      int64    `parquet:"name=fetched_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Rank           int32    `parquet:"name=rank, type=INT32"`
	Name           string   `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol         string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	CurrentPrice   float64  `parquet:"name=current_price, type=DOUBLE"`
	MarketCap      float64  `parquet:"name=market_cap, type=DOUBLE"`
	TotalVolume    float64  `parquet:"name=total_volume, type=DOUBLE"`
	PriceChange24h *float64 `parquet:"name=price_change_percentage_24h, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// memoryFileWriter implements ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

// Seek only reports the write position; the writer never moves backwards.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// ExportResult describes the file one export produced.
type ExportResult struct {
	Path  string
	Bytes int64
	Rows  int
}

// ParquetExporter writes the raw snapshot to a fixed Parquet file, replacing
// the previous export.
type ParquetExporter struct {
	path        string
	compression string
	log         *logger.Log
}

// NewParquetExporter creates an exporter for the configured path.
func NewParquetExporter(cfg config.ExportConfig, log *logger.Log) *ParquetExporter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ParquetExporter{path: cfg.ParquetPath, compression: cfg.Compression, log: log}
}

// ExportSnapshot encodes s and writes it to the export path.
func (e *ParquetExporter) ExportSnapshot(ctx context.Context, s models.Snapshot) (ExportResult, error) {
	if err := ctx.Err(); err != nil {
		return ExportResult{}, fmt.Errorf("%w: %v", ErrExport, err)
	}

	log := e.log.WithComponent("exporter").WithFields(logger.Fields{
		"operation": "export_snapshot",
		"path":      e.path,
	})
	start := time.Now()

	data, err := e.encode(s)
	if err != nil {
		return ExportResult{}, fmt.Errorf("%w: %v", ErrExport, err)
	}

	// Replaced by rename; readers never observe a partial file.
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ExportResult{}, fmt.Errorf("%w: failed to write %s: %v", ErrExport, tmp, err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return ExportResult{}, fmt.Errorf("%w: failed to replace %s: %v", ErrExport, e.path, err)
	}

	logger.LogPerformanceEntry(log, "exporter", "export_snapshot", time.Since(start), logger.Fields{
		"file_size":   len(data),
		"compression": e.compression,
	})
	return ExportResult{Path: e.path, Bytes: int64(len(data)), Rows: s.Len()}, nil
}

func (e *ParquetExporter) encode(s models.Snapshot) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch e.compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	fetched := s.FetchedAt.UnixMilli()
	for i, a := range s.Assets {
		record := ParquetRecord{
			FetchedAt:    fetched,
			Rank:         int32(i + 1),
			Name:         a.Name,
			Symbol:       a.Symbol,
			CurrentPrice: a.CurrentPrice.InexactFloat64(),
			MarketCap:    a.MarketCap.InexactFloat64(),
			TotalVolume:  a.TotalVolume.InexactFloat64(),
		}
		if a.HasPriceChange() {
			change := a.PriceChangePercentage24h.Decimal.InexactFloat64()
			record.PriceChange24h = &change
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
