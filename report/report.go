package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cryptoreport/config"
	"cryptoreport/internal/analysis"
	"cryptoreport/logger"
)

const (
	StageChart    = "chart"
	StageDocument = "document"
)

// RenderError reports which rendering stage failed.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Artifacts lists the files one Render call produced. A path is empty when
// its stage did not complete.
type Artifacts struct {
	ChartPath  string
	PDFPath    string
	ChartBytes int64
	PDFBytes   int64
}

// Renderer turns a summary into the chart image and the PDF report at fixed
// paths, overwriting the previous run's files.
type Renderer struct {
	pdfPath   string
	chartPath string
	log       *logger.Log
}

// NewRenderer creates a renderer for the configured output paths.
func NewRenderer(cfg config.ReportConfig, log *logger.Log) *Renderer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Renderer{
		pdfPath:   cfg.PDFPath,
		chartPath: cfg.ChartPath,
		log:       log,
	}
}

// Render writes the chart and then the document that embeds it. On a
// document failure the returned Artifacts still names the chart so the
// caller can clean it up.
func (r *Renderer) Render(ctx context.Context, s analysis.Summary) (Artifacts, error) {
	log := r.log.WithComponent("report").WithFields(logger.Fields{
		"operation": "render",
		"assets":    s.AssetCount,
	})

	var arts Artifacts
	if err := ctx.Err(); err != nil {
		return arts, &RenderError{Stage: StageChart, Err: err}
	}

	start := time.Now()
	n, err := renderChart(r.chartPath, s.MarketShare)
	if err != nil {
		return arts, &RenderError{Stage: StageChart, Err: err}
	}
	arts.ChartPath, arts.ChartBytes = r.chartPath, n
	log.WithFields(logger.Fields{"path": r.chartPath, "bytes": n}).Debug("chart written")

	if err := ctx.Err(); err != nil {
		return arts, &RenderError{Stage: StageDocument, Err: err}
	}

	n, err = renderDocument(r.pdfPath, r.chartPath, s)
	if err != nil {
		return arts, &RenderError{Stage: StageDocument, Err: err}
	}
	arts.PDFPath, arts.PDFBytes = r.pdfPath, n

	logger.LogPerformanceEntry(log, "report", "render", time.Since(start), logger.Fields{
		"pdf_path":  r.pdfPath,
		"pdf_bytes": n,
	})
	return arts, nil
}

// Cleanup removes the temporary chart. A chart that is already gone is not
// an error.
func (r *Renderer) Cleanup(arts Artifacts) error {
	if arts.ChartPath == "" {
		return nil
	}
	if err := os.Remove(arts.ChartPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove chart %s: %w", arts.ChartPath, err)
	}
	r.log.WithComponent("report").WithFields(logger.Fields{"path": arts.ChartPath}).Info("temporary chart deleted")
	return nil
}
