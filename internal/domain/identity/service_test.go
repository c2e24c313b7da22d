package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/pkg/errs"
)

type mockRepo struct {
	actors map[uuid.UUID]*Actor
}

func newMockRepo() *mockRepo {
	return &mockRepo{actors: make(map[uuid.UUID]*Actor)}
}

func (m *mockRepo) Create(ctx context.Context, a *Actor) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Active = true
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.actors[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Actor, error) {
	a, ok := m.actors[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "actor not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) GetByExternalRef(ctx context.Context, ref string) (*Actor, error) {
	for _, a := range m.actors {
		if a.ExternalRef == ref {
			cp := *a
			return &cp, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "actor not found")
}

func (m *mockRepo) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Actor, int, error) {
	var out []*Actor
	for _, a := range m.actors {
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	a, ok := m.actors[id]
	if !ok {
		return errs.New(errs.KindNotFound, "actor not found")
	}
	a.Active = active
	return nil
}

func TestCreateValidatesRole(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.Create(context.Background(), "user-1", "Dr. Rao", "superuser"); !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
	if _, err := svc.Create(context.Background(), "", "Dr. Rao", RoleClinician); !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument for empty ref", err)
	}
}

func TestResolveRole(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	a, err := svc.Create(context.Background(), "user-1", "Dr. Rao", RoleClinician)
	if err != nil {
		t.Fatal(err)
	}

	role, err := svc.ResolveRole(context.Background(), "user-1")
	if err != nil || role != RoleClinician {
		t.Fatalf("resolve = %q, %v; want clinician", role, err)
	}

	if err := svc.SetActive(context.Background(), a.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ResolveRole(context.Background(), "user-1"); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("err = %v, want NotFound for deactivated actor", err)
	}
}
