package ingest

import (
	"time"

	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
)

// Progress is a snapshot of one ingestion run after a batch.
type Progress struct {
	Total     int
	Processed int
	Failed    int
	Batches   int
	Elapsed   time.Duration
}

// Rate returns processed documents per second.
func (p Progress) Rate() float64 {
	secs := p.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.Processed) / secs
}

// progressTracker accumulates per-batch outcomes of a single run. Batches are processed
// sequentially, so it needs no locking.
type progressTracker struct {
	logger *zap.Logger
	start  time.Time
	now    func() time.Time
	state  Progress
}

func newProgressTracker(logger *zap.Logger, total int, now func() time.Time) *progressTracker {
	return &progressTracker{logger: logger, start: now(), now: now, state: Progress{Total: total}}
}

// batchDone records one finished batch and reports progress.
func (p *progressTracker) batchDone(succeeded, failed int, batchStart time.Time) Progress {
	end := p.now()
	p.state.Processed += succeeded + failed
	p.state.Failed += failed
	p.state.Batches++
	p.state.Elapsed = end.Sub(p.start)

	metrics.IngestDocumentsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	metrics.IngestDocumentsTotal.WithLabelValues("failed").Add(float64(failed))
	metrics.IngestBatchDuration.Observe(end.Sub(batchStart).Seconds())
	metrics.IngestDocsPerSecond.Set(p.state.Rate())

	p.logger.Info("Ingestion progress",
		zap.Int("batch", p.state.Batches),
		zap.Int("processed", p.state.Processed),
		zap.Int("total", p.state.Total),
		zap.Int("failed", p.state.Failed),
		zap.Duration("elapsed", p.state.Elapsed),
		zap.Float64("docs_per_sec", p.state.Rate()),
	)
	return p.state
}
