package audittrail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinrec/clinrec/internal/platform/db"
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

const entryCols = `id, import_id, target_store, target_record_id, field_path,
	operation, previous_data, new_data, applied_by, applied_at`

func scanEntry(row pgx.Row) (*AppliedRecordEntry, error) {
	var (
		e        AppliedRecordEntry
		prevJSON []byte
		newJSON  []byte
	)
	err := row.Scan(
		&e.ID, &e.ImportID, &e.TargetStore, &e.TargetRecordID, &e.FieldPath,
		&e.Operation, &prevJSON, &newJSON, &e.AppliedBy, &e.AppliedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(prevJSON) > 0 {
		if err := json.Unmarshal(prevJSON, &e.PreviousData); err != nil {
			return nil, fmt.Errorf("decode previous_data: %w", err)
		}
	}
	if len(newJSON) > 0 {
		if err := json.Unmarshal(newJSON, &e.NewData); err != nil {
			return nil, fmt.Errorf("decode new_data: %w", err)
		}
	}
	return &e, nil
}

func (r *RepoPG) Append(ctx context.Context, e *AppliedRecordEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var prevJSON interface{}
	if e.PreviousData != nil {
		b, err := json.Marshal(e.PreviousData)
		if err != nil {
			return fmt.Errorf("encode previous_data: %w", err)
		}
		prevJSON = b
	}
	newJSON, err := json.Marshal(e.NewData)
	if err != nil {
		return fmt.Errorf("encode new_data: %w", err)
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO applied_record_entry
			(id, import_id, target_store, target_record_id, field_path,
			 operation, previous_data, new_data, applied_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING applied_at`,
		e.ID, e.ImportID, e.TargetStore, e.TargetRecordID, e.FieldPath,
		e.Operation, prevJSON, newJSON, e.AppliedBy,
	)
	return row.Scan(&e.AppliedAt)
}

func (r *RepoPG) ListByImport(ctx context.Context, importID uuid.UUID) ([]*AppliedRecordEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+`
		FROM applied_record_entry
		WHERE import_id = $1
		ORDER BY field_path ASC`, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AppliedRecordEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
