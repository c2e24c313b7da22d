package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/platform/extractq"
)

// Worker consumes extraction jobs and drives each import from
// processing-pending to review-pending or processing-failed.
type Worker struct {
	svc       *Service
	queue     *extractq.Queue
	extractor Extractor
	logger    zerolog.Logger
}

func NewWorker(svc *Service, queue *extractq.Queue, extractor Extractor, logger zerolog.Logger) *Worker {
	return &Worker{svc: svc, queue: queue, extractor: extractor, logger: logger}
}

// Run blocks consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, consumer string) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	return w.queue.Consume(ctx, consumer, w.handle)
}

func (w *Worker) handle(ctx context.Context, job extractq.Job) error {
	rec, err := w.svc.Get(ctx, job.ImportID)
	if err != nil {
		return err
	}
	if rec.ProcessingStatus != ProcessingPending {
		// Redelivered job for an import that already moved on.
		w.logger.Debug().Str("import_id", job.ImportID.String()).
			Str("processing_status", rec.ProcessingStatus).
			Msg("skipping extraction job, import no longer pending")
		return nil
	}

	result, err := w.extractor.Extract(ctx, rec.SourceFiles)
	if err != nil {
		// Extraction failures are terminal for this attempt; a fresh
		// submit is required to retry.
		w.logger.Warn().Err(err).Str("import_id", job.ImportID.String()).
			Msg("extraction failed")
		return w.svc.FailExtraction(ctx, job.ImportID, err)
	}

	if _, err := w.svc.CompleteExtraction(ctx, job.ImportID, result); err != nil {
		// Snapshot or persistence failure: leave the job pending so the
		// stream redelivers it.
		return err
	}
	return nil
}
