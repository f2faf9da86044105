package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cryptoreport/internal/analysis"
	"cryptoreport/internal/metrics"
	"cryptoreport/logger"
	"cryptoreport/models"
	"cryptoreport/reader"
	"cryptoreport/report"
	"cryptoreport/writer"
)

// DefaultInterval is the idle time between two polls.
const DefaultInterval = 5 * time.Second

const (
	KindFetch     = "fetch"
	KindMirror    = "mirror"
	KindAggregate = "aggregate"
	KindRender    = "render"
	KindExport    = "export"
	KindPublish   = "publish"
	KindUnknown   = "unknown"
)

type Source interface {
	FetchSnapshot(ctx context.Context) (models.Snapshot, error)
}

type Mirror interface {
	MirrorSnapshot(ctx context.Context, s models.Snapshot) error
}

type Renderer interface {
	Render(ctx context.Context, s analysis.Summary) (report.Artifacts, error)
	Cleanup(arts report.Artifacts) error
}

type Exporter interface {
	ExportSnapshot(ctx context.Context, s models.Snapshot) (writer.ExportResult, error)
}

type Publisher interface {
	Publish(ctx context.Context, files ...string) error
}

// Deps are the collaborators of one poll. Source and Renderer are required,
// the rest are skipped when nil.
type Deps struct {
	Source    Source
	Mirror    Mirror
	Renderer  Renderer
	Exporter  Exporter
	Publisher Publisher
}

type Config struct {
	Interval time.Duration
	// StopOnError ends Run at the first failed poll instead of logging it
	// and waiting for the next one.
	StopOnError bool
	TopN        int
}

// Poller alternates between one poll and a fixed idle wait.
type Poller struct {
	cfg  Config
	deps Deps
	log  *logger.Log
}

func New(cfg Config, deps Deps, log *logger.Log) (*Poller, error) {
	if deps.Source == nil || deps.Renderer == nil {
		return nil, errors.New("poller requires a source and a renderer")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TopN <= 0 {
		cfg.TopN = analysis.TopReportSize
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Poller{cfg: cfg, deps: deps, log: log}, nil
}

// Kind classifies a poll error by the step that produced it.
func Kind(err error) string {
	var (
		fetchErr   *reader.FetchError
		mirrorErr  *writer.MirrorError
		renderErr  *report.RenderError
		publishErr *writer.PublishError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &mirrorErr):
		return KindMirror
	case errors.Is(err, analysis.ErrEmptyInput), errors.Is(err, analysis.ErrNoComparableData):
		return KindAggregate
	case errors.As(err, &renderErr):
		return KindRender
	case errors.Is(err, writer.ErrExport):
		return KindExport
	case errors.As(err, &publishErr):
		return KindPublish
	default:
		return KindUnknown
	}
}

// Run polls until ctx is cancelled, returning nil. With StopOnError it
// returns the first poll error instead.
func (p *Poller) Run(ctx context.Context) error {
	log := p.log.WithComponent("poller").WithFields(logger.Fields{
		"interval":      p.cfg.Interval.String(),
		"stop_on_error": p.cfg.StopOnError,
	})
	log.Info("starting poll loop")

	for {
		err := p.RunOnce(ctx)
		if ctx.Err() != nil {
			log.Info("poll loop stopped")
			return nil
		}
		if err != nil && p.cfg.StopOnError {
			log.WithError(err).Error("poll loop exiting after failed poll")
			return err
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs a single poll, logging and counting its outcome.
func (p *Poller) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	log := p.log.WithComponent("poller").WithFields(logger.Fields{"run_id": runID})
	start := time.Now()

	stats := metrics.PollStats{RunID: runID}
	err := p.poll(ctx, log, &stats)
	stats.Duration = time.Since(start)
	stats.Success = err == nil
	stats.Kind = Kind(err)
	metrics.ReportPoll(p.log, stats)

	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"kind":        stats.Kind,
			"duration_ms": stats.Duration.Milliseconds(),
		}).Error("poll failed")
		return err
	}

	log.WithFields(logger.Fields{
		"assets":      stats.Assets,
		"pdf_bytes":   stats.PDFBytes,
		"duration_ms": stats.Duration.Milliseconds(),
	}).Info("poll completed")
	return nil
}

func (p *Poller) poll(ctx context.Context, log *logger.Entry, stats *metrics.PollStats) error {
	snapshot, err := p.deps.Source.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	stats.Assets = snapshot.Len()
	log.WithFields(logger.Fields{"assets": snapshot.Len()}).Info("snapshot fetched")

	if p.deps.Mirror != nil {
		if err := p.deps.Mirror.MirrorSnapshot(ctx, snapshot); err != nil {
			return err
		}
		log.Info("spreadsheet updated")
	}

	summary, err := analysis.Summarize(snapshot, p.cfg.TopN)
	if err != nil {
		return fmt.Errorf("aggregate snapshot: %w", err)
	}

	arts, err := p.deps.Renderer.Render(ctx, summary)
	defer func() {
		if cerr := p.deps.Renderer.Cleanup(arts); cerr != nil {
			log.WithError(cerr).Warn("failed to remove chart")
		}
	}()
	if err != nil {
		return err
	}
	stats.PDFBytes = arts.PDFBytes
	log.WithFields(logger.Fields{"pdf_path": arts.PDFPath}).Info("report generated")

	files := []string{arts.PDFPath}
	if p.deps.Exporter != nil {
		res, err := p.deps.Exporter.ExportSnapshot(ctx, snapshot)
		if err != nil {
			return err
		}
		stats.ExportSize = res.Bytes
		files = append(files, res.Path)
	}

	if p.deps.Publisher != nil {
		if err := p.deps.Publisher.Publish(ctx, files...); err != nil {
			return err
		}
		log.WithFields(logger.Fields{"files": len(files)}).Info("artifacts published")
	}
	return nil
}
