package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Actor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Actor, error)
	GetByExternalRef(ctx context.Context, ref string) (*Actor, error)
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Actor, int, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
