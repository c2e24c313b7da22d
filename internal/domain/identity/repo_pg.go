package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
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

const actorCols = `id, external_ref, display_name, role, active, created_at, updated_at`

func scanActor(row pgx.Row) (*Actor, error) {
	var a Actor
	err := row.Scan(&a.ID, &a.ExternalRef, &a.DisplayName, &a.Role, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "actor not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *RepoPG) Create(ctx context.Context, a *Actor) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO actor (id, external_ref, display_name, role, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING created_at, updated_at`,
		a.ID, a.ExternalRef, a.DisplayName, a.Role,
	)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return err
	}
	a.Active = true
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Actor, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+actorCols+` FROM actor WHERE id = $1`, id)
	a, err := scanActor(row)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindNotFound, "actor not found").WithSubject(id.String())
	}
	return a, err
}

func (r *RepoPG) GetByExternalRef(ctx context.Context, ref string) (*Actor, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+actorCols+` FROM actor WHERE external_ref = $1`, ref)
	a, err := scanActor(row)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindNotFound, "actor not found").WithSubject(ref)
	}
	return a, err
}

var actorFilters = map[string]db.FilterConfig{
	"role":   {Type: db.FilterExact, Column: "role"},
	"active": {Type: db.FilterExact, Column: "active"},
	"name":   {Type: db.FilterILike, Column: "display_name"},
}

func (r *RepoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Actor, int, error) {
	q := db.NewListQuery("actor", actorCols)
	q.ApplyParams(params, actorFilters)
	q.OrderBy("display_name ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *RepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE actor SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "actor not found").WithSubject(id.String())
	}
	return nil
}
