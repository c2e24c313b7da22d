package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/audittrail"
	"github.com/clinrec/clinrec/internal/domain/records"
	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/pkg/errs"
)

// JobQueue schedules extraction work for a submitted import.
type JobQueue interface {
	Enqueue(ctx context.Context, importID uuid.UUID) error
}

// Service drives the import lifecycle: submit, extraction completion, and
// the reviewer's decision.
type Service struct {
	repo   Repository
	store  records.Store
	audit  *audittrail.Service
	queue  JobQueue
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, store records.Store, audit *audittrail.Service, queue JobQueue, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, store: store, audit: audit, queue: queue, tx: tx, logger: logger}
}

// Submit records a new import in processing-pending and schedules extraction.
// It returns immediately; the extraction result arrives later through
// CompleteExtraction or FailExtraction.
func (s *Service) Submit(ctx context.Context, patientID uuid.UUID, actorID string, files []SourceFile) (*ImportRecord, error) {
	if patientID == uuid.Nil {
		return nil, errs.New(errs.KindInvalidArgument, "patient id is required")
	}
	if len(files) == 0 {
		return nil, errs.New(errs.KindInvalidArgument, "at least one source file is required")
	}
	rec := &ImportRecord{
		PatientID:   patientID,
		SubmittedBy: actorID,
		SourceFiles: files,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, rec.ID); err != nil {
		// The row stays processing-pending; an operator can re-enqueue.
		s.logger.Error().Err(err).Str("import_id", rec.ID.String()).
			Msg("failed to enqueue extraction job")
		return nil, err
	}
	return rec, nil
}

// CompleteExtraction stores the extraction output, snapshots the patient's
// current record and computes the conflict set, moving the import to
// review-pending. The snapshot is taken here, once: patient edits after this
// point are invisible to the diff until a reviewer acts.
func (s *Service) CompleteExtraction(ctx context.Context, importID uuid.UUID, result *ExtractionResult) (*ImportRecord, error) {
	rec, err := s.repo.GetByID(ctx, importID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.store.Snapshot(ctx, rec.PatientID)
	if err != nil {
		return nil, err
	}
	conflicts := Diff(snapshot, result.Document)
	updated, err := s.repo.CompleteProcessing(ctx, importID, result.Document, snapshot, conflicts, result.Confidence)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("import_id", importID.String()).
		Int("conflicts", len(conflicts)).
		Msg("import ready for review")
	return updated, nil
}

// FailExtraction marks the import processing-failed with the collaborator's
// error text. Terminal: retrying means submitting a fresh import, which
// preserves the failed attempt for audit.
func (s *Service) FailExtraction(ctx context.Context, importID uuid.UUID, cause error) error {
	msg := "extraction failed"
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.FailProcessing(ctx, importID, msg)
}

// Get returns one import record.
func (s *Service) Get(ctx context.Context, importID uuid.UUID) (*ImportRecord, error) {
	return s.repo.GetByID(ctx, importID)
}

// List returns import records matching the filters.
func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*ImportRecord, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}

// Decide records the reviewer's verdict and applies every approved path to
// the patient's current record in one transaction. Either all approved
// writes commit together with the terminal review status and the audit
// entries, or none do and the import stays review-pending.
func (s *Service) Decide(ctx context.Context, importID uuid.UUID, reviewerID string, approved, rejected []string, notes string) (*ImportRecord, error) {
	rec, err := s.repo.GetByID(ctx, importID)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.ProcessingStatus == ProcessingPending:
		return nil, errs.New(errs.KindWriteConflict, "import is still processing").WithSubject(importID.String())
	case rec.ProcessingStatus == ProcessingFailed:
		return nil, errs.New(errs.KindWriteConflict, "import failed processing and cannot be reviewed").WithSubject(importID.String())
	case rec.Reviewed():
		return nil, errs.New(errs.KindAlreadyReviewed, "import already reviewed").WithSubject(importID.String())
	}

	known := rec.ConflictPaths()
	approvedSet := make(map[string]bool, len(approved))
	for _, p := range approved {
		if _, ok := known[p]; !ok {
			return nil, errs.New(errs.KindUnknownFieldPath, "path is not in the conflict set").WithSubject(p)
		}
		if approvedSet[p] {
			return nil, errs.New(errs.KindInvalidArgument, "path approved more than once").WithSubject(p)
		}
		approvedSet[p] = true
	}
	rejectedSet := make(map[string]bool, len(rejected))
	for _, p := range rejected {
		if _, ok := known[p]; !ok {
			return nil, errs.New(errs.KindUnknownFieldPath, "path is not in the conflict set").WithSubject(p)
		}
		if approvedSet[p] {
			return nil, errs.New(errs.KindInvalidArgument, "path both approved and rejected").WithSubject(p)
		}
		if rejectedSet[p] {
			return nil, errs.New(errs.KindInvalidArgument, "path rejected more than once").WithSubject(p)
		}
		rejectedSet[p] = true
	}

	status := ReviewPartiallyApproved
	switch {
	case len(approvedSet) == 0:
		status = ReviewRejected
	case len(approvedSet) == len(known):
		status = ReviewApproved
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// The CAS transition runs first so a concurrent decide loses here
		// before touching patient data.
		if err := s.repo.FinalizeReview(txCtx, importID, status, reviewerID, approved, rejected, notes, time.Now()); err != nil {
			return err
		}
		for _, path := range approved {
			conflict := known[path]
			res, err := s.store.Write(txCtx, rec.PatientID, path, conflict.ExtractedValue)
			if err != nil {
				return err
			}
			op := audittrail.OpUpdate
			if !res.Existed {
				op = audittrail.OpInsert
			}
			entry := &audittrail.AppliedRecordEntry{
				ImportID:       importID,
				TargetStore:    records.StoreName,
				TargetRecordID: res.RecordID,
				FieldPath:      path,
				Operation:      op,
				PreviousData:   res.Previous,
				NewData:        conflict.ExtractedValue,
				AppliedBy:      reviewerID,
			}
			if err := s.audit.Record(txCtx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("import_id", importID.String()).
		Str("review_status", status).
		Int("applied", len(approved)).
		Msg("import decided")
	return s.repo.GetByID(ctx, importID)
}
