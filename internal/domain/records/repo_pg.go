package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

type StorePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) *StorePG {
	return &StorePG{pool: pool}
}

func (r *StorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, patient_id, namespace, data, created_at, updated_at`

func scanRecord(row pgx.Row) (*PatientRecord, error) {
	var (
		rec      PatientRecord
		dataJSON []byte
	)
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.Namespace, &dataJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "patient record not found")
	}
	if err != nil {
		return nil, err
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode record data: %w", err)
		}
	}
	return &rec, nil
}

func (r *StorePG) Snapshot(ctx context.Context, patientID uuid.UUID) (document.Document, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT namespace, data FROM patient_record
		WHERE patient_id = $1
		ORDER BY namespace`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doc := document.Document{}
	for rows.Next() {
		var (
			ns       string
			dataJSON []byte
		)
		if err := rows.Scan(&ns, &dataJSON); err != nil {
			return nil, err
		}
		var v interface{}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &v); err != nil {
				return nil, fmt.Errorf("decode namespace %q: %w", ns, err)
			}
		}
		doc[ns] = v
	}
	return doc, rows.Err()
}

func (r *StorePG) GetNamespace(ctx context.Context, patientID uuid.UUID, namespace string) (*PatientRecord, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+recordCols+` FROM patient_record
		WHERE patient_id = $1 AND namespace = $2`, patientID, namespace)
	rec, err := scanRecord(row)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindNotFound, "patient record not found").WithSubject(namespace)
	}
	return rec, err
}

func (r *StorePG) Write(ctx context.Context, patientID uuid.UUID, fieldPath string, value interface{}) (*WriteResult, error) {
	ns, err := document.RootKey(fieldPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknownFieldPath, "malformed field path", err).WithSubject(fieldPath)
	}
	q := r.conn(ctx)

	var (
		recordID uuid.UUID
		dataJSON []byte
	)
	row := q.QueryRow(ctx, `
		SELECT id, data FROM patient_record
		WHERE patient_id = $1 AND namespace = $2
		FOR UPDATE`, patientID, ns)
	err = row.Scan(&recordID, &dataJSON)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		recordID = uuid.Nil
	case err != nil:
		return nil, err
	}

	// Mutate a single-namespace wrapper so paths resolve the same way they
	// do against a full snapshot.
	wrapper := document.Document{}
	if len(dataJSON) > 0 {
		var v interface{}
		if err := json.Unmarshal(dataJSON, &v); err != nil {
			return nil, fmt.Errorf("decode namespace %q: %w", ns, err)
		}
		wrapper[ns] = v
	}
	_, existed := document.Get(wrapper, fieldPath)
	prev, err := document.Set(wrapper, fieldPath, value)
	if err != nil {
		return nil, errs.Wrap(errs.KindWriteConflict, "field path conflicts with stored data shape", err).WithSubject(fieldPath)
	}
	newJSON, err := json.Marshal(wrapper[ns])
	if err != nil {
		return nil, fmt.Errorf("encode namespace %q: %w", ns, err)
	}

	if recordID == uuid.Nil {
		recordID = uuid.New()
		_, err = q.Exec(ctx, `
			INSERT INTO patient_record (id, patient_id, namespace, data)
			VALUES ($1, $2, $3, $4)`, recordID, patientID, ns, newJSON)
	} else {
		_, err = q.Exec(ctx, `
			UPDATE patient_record SET data = $1, updated_at = NOW()
			WHERE id = $2`, newJSON, recordID)
	}
	if err != nil {
		return nil, err
	}
	return &WriteResult{RecordID: recordID, Previous: prev, Existed: existed}, nil
}
