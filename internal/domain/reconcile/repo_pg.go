package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/internal/platform/document"
	"github.com/clinrec/clinrec/pkg/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const importCols = `id, patient_id, submitted_by, source_files, extracted_doc,
	current_snapshot, conflicts, has_conflicts, confidence_score,
	processing_status, processing_error, review_status, reviewed_by,
	reviewed_at, approved_paths, rejected_paths, review_notes,
	created_at, updated_at`

func scanImport(row pgx.Row) (*ImportRecord, error) {
	var (
		rec       ImportRecord
		filesJSON []byte
		extJSON   []byte
		snapJSON  []byte
		confJSON  []byte
	)
	err := row.Scan(
		&rec.ID, &rec.PatientID, &rec.SubmittedBy, &filesJSON, &extJSON,
		&snapJSON, &confJSON, &rec.HasConflicts, &rec.ConfidenceScore,
		&rec.ProcessingStatus, &rec.ProcessingError, &rec.ReviewStatus, &rec.ReviewedBy,
		&rec.ReviewedAt, &rec.ApprovedPaths, &rec.RejectedPaths, &rec.ReviewNotes,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "import not found")
	}
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst interface{}
	}{
		{filesJSON, &rec.SourceFiles},
		{extJSON, &rec.ExtractedDoc},
		{snapJSON, &rec.CurrentSnapshot},
		{confJSON, &rec.Conflicts},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode import column: %w", err)
		}
	}
	return &rec, nil
}

func (r *RepoPG) Create(ctx context.Context, rec *ImportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	filesJSON, err := json.Marshal(rec.SourceFiles)
	if err != nil {
		return fmt.Errorf("encode source files: %w", err)
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO import_record
			(id, patient_id, submitted_by, source_files,
			 processing_status, review_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.SubmittedBy, filesJSON,
		ProcessingPending, ReviewPending,
	)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return err
	}
	rec.ProcessingStatus = ProcessingPending
	rec.ReviewStatus = ReviewPending
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ImportRecord, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+importCols+` FROM import_record WHERE id = $1`, id)
	rec, err := scanImport(row)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindNotFound, "import not found").WithSubject(id.String())
	}
	return rec, err
}

func (r *RepoPG) CompleteProcessing(ctx context.Context, id uuid.UUID, extracted, snapshot document.Document, conflicts []Conflict, confidence *float64) (*ImportRecord, error) {
	extJSON, err := json.Marshal(extracted)
	if err != nil {
		return nil, fmt.Errorf("encode extracted document: %w", err)
	}
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	confJSON, err := json.Marshal(conflicts)
	if err != nil {
		return nil, fmt.Errorf("encode conflicts: %w", err)
	}

	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE import_record
		SET extracted_doc = $1, current_snapshot = $2, conflicts = $3,
		    has_conflicts = $4, confidence_score = $5,
		    processing_status = $6, updated_at = NOW()
		WHERE id = $7 AND processing_status = $8
		RETURNING `+importCols,
		extJSON, snapJSON, confJSON, len(conflicts) > 0, confidence,
		ProcessingCompleted, id, ProcessingPending,
	)
	rec, err := scanImport(row)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindWriteConflict, "import is not awaiting extraction").WithSubject(id.String())
	}
	return rec, err
}

func (r *RepoPG) FailProcessing(ctx context.Context, id uuid.UUID, errText string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE import_record
		SET processing_status = $1, processing_error = $2, updated_at = NOW()
		WHERE id = $3 AND processing_status = $4`,
		ProcessingFailed, errText, id, ProcessingPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindWriteConflict, "import is not awaiting extraction").WithSubject(id.String())
	}
	return nil
}

func (r *RepoPG) FinalizeReview(ctx context.Context, id uuid.UUID, status, reviewerID string, approved, rejected []string, notes string, reviewedAt time.Time) error {
	if approved == nil {
		approved = []string{}
	}
	if rejected == nil {
		rejected = []string{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE import_record
		SET review_status = $1, reviewed_by = $2, reviewed_at = $3,
		    approved_paths = $4, rejected_paths = $5, review_notes = $6,
		    updated_at = NOW()
		WHERE id = $7 AND processing_status = $8 AND review_status = $9`,
		status, reviewerID, reviewedAt, approved, rejected, notes,
		id, ProcessingCompleted, ReviewPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindAlreadyReviewed, "import already reviewed").WithSubject(id.String())
	}
	return nil
}

var importFilters = map[string]db.FilterConfig{
	"patient_id":        {Type: db.FilterExact, Column: "patient_id"},
	"processing_status": {Type: db.FilterExact, Column: "processing_status"},
	"review_status":     {Type: db.FilterExact, Column: "review_status"},
	"submitted_by":      {Type: db.FilterExact, Column: "submitted_by"},
}

func (r *RepoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*ImportRecord, int, error) {
	q := db.NewListQuery("import_record", importCols)
	q.ApplyParams(params, importFilters)
	q.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*ImportRecord
	for rows.Next() {
		rec, err := scanImport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
