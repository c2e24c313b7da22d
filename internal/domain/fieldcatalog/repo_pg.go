package fieldcatalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinrec/clinrec/internal/platform/db"
	"github.com/clinrec/clinrec/pkg/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the PostgreSQL-backed field catalog repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const fieldCols = `field_name, display_label, field_type, validation, specialties,
	usage_count, promoted, target_store, target_column, created_at, last_used_at`

func (r *repoPG) scanField(row pgx.Row) (*FieldDefinition, error) {
	var f FieldDefinition
	err := row.Scan(&f.FieldName, &f.DisplayLabel, &f.FieldType, &f.Validation, &f.Specialties,
		&f.UsageCount, &f.Promoted, &f.TargetStore, &f.TargetColumn, &f.CreatedAt, &f.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "field definition not found")
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Register relies on ON CONFLICT so the specialty union and counter bump are
// a single atomic statement; concurrent registrations serialize on the row.
func (r *repoPG) Register(ctx context.Context, fieldName, specialty, displayLabel, fieldType string) (*FieldDefinition, error) {
	return r.scanField(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO field_definition (field_name, display_label, field_type, specialties, usage_count)
		VALUES ($1, $2, $3, ARRAY[$4]::text[], 1)
		ON CONFLICT (field_name) DO UPDATE SET
			usage_count = field_definition.usage_count + 1,
			specialties = CASE
				WHEN $4 = ANY(field_definition.specialties) THEN field_definition.specialties
				ELSE array_append(field_definition.specialties, $4)
			END,
			last_used_at = NOW()
		RETURNING `+fieldCols,
		fieldName, displayLabel, fieldType, specialty))
}

func (r *repoPG) GetByName(ctx context.Context, fieldName string) (*FieldDefinition, error) {
	return r.scanField(r.conn(ctx).QueryRow(ctx,
		`SELECT `+fieldCols+` FROM field_definition WHERE field_name = $1`, fieldName))
}

func (r *repoPG) Promote(ctx context.Context, fieldName, targetStore, targetColumn string) (*FieldDefinition, error) {
	f, err := r.scanField(r.conn(ctx).QueryRow(ctx, `
		UPDATE field_definition
		SET promoted = TRUE, target_store = $2, target_column = $3
		WHERE field_name = $1 AND promoted = FALSE
		RETURNING `+fieldCols,
		fieldName, targetStore, targetColumn))
	if errs.Is(err, errs.KindNotFound) {
		// Distinguish a missing definition from one already promoted.
		if _, getErr := r.GetByName(ctx, fieldName); getErr == nil {
			return nil, errs.New(errs.KindAlreadyPromoted, "field is already promoted").WithSubject(fieldName)
		}
		return nil, err
	}
	return f, err
}

func (r *repoPG) ListCandidates(ctx context.Context) ([]*MigrationCandidate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT field_name, field_type, specialties, usage_count
		FROM field_definition
		WHERE promoted = FALSE AND array_length(specialties, 1) >= 2
		ORDER BY usage_count DESC, field_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MigrationCandidate
	for rows.Next() {
		var c MigrationCandidate
		if err := rows.Scan(&c.FieldName, &c.FieldType, &c.Specialties, &c.UsageCount); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

var fieldFilters = map[string]db.FilterConfig{
	"promoted": {Type: db.FilterExact, Column: "promoted"},
	"label":    {Type: db.FilterILike, Column: "display_label"},
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*FieldDefinition, int, error) {
	qb := db.NewListQuery("field_definition", fieldCols)
	if specialty, ok := params["specialty"]; ok {
		qb.Add(fmt.Sprintf("$%d = ANY(specialties)", qb.Idx()), specialty)
		delete(params, "specialty")
	}
	qb.ApplyParams(params, fieldFilters)
	qb.OrderBy("usage_count DESC, field_name ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*FieldDefinition
	for rows.Next() {
		f, err := r.scanField(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, rows.Err()
}
