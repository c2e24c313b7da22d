package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/pkg/errs"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, externalRef, displayName, role string) (*Actor, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, errs.New(errs.KindInvalidArgument, "external ref is required")
	}
	if !ValidRole(role) {
		return nil, errs.Newf(errs.KindInvalidArgument, "unknown role %q", role)
	}
	a := &Actor{ExternalRef: externalRef, DisplayName: displayName, Role: role}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Actor, error) {
	return s.repo.GetByID(ctx, id)
}

// ResolveRole maps an actor reference to its role. Inactive actors resolve
// to NotFound so a deactivated account cannot authorize anything.
func (s *Service) ResolveRole(ctx context.Context, ref string) (string, error) {
	a, err := s.repo.GetByExternalRef(ctx, ref)
	if err != nil {
		return "", err
	}
	if !a.Active {
		return "", errs.New(errs.KindNotFound, "actor is deactivated").WithSubject(ref)
	}
	return a.Role, nil
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Actor, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}
