package audittrail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type mockRepo struct {
	entries []*AppliedRecordEntry
}

func (m *mockRepo) Append(ctx context.Context, e *AppliedRecordEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.AppliedAt = time.Now()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockRepo) ListByImport(ctx context.Context, importID uuid.UUID) ([]*AppliedRecordEntry, error) {
	var out []*AppliedRecordEntry
	for _, e := range m.entries {
		if e.ImportID == importID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestRecordAndListByImport(t *testing.T) {
	svc := NewService(&mockRepo{})
	importID := uuid.New()
	other := uuid.New()

	for i, imp := range []uuid.UUID{importID, importID, other} {
		err := svc.Record(context.Background(), &AppliedRecordEntry{
			ImportID:       imp,
			TargetStore:    "patient_record",
			TargetRecordID: uuid.New(),
			FieldPath:      "vitals.bp",
			Operation:      OpUpdate,
			PreviousData:   float64(110 + i),
			NewData:        float64(120 + i),
			AppliedBy:      "reviewer-1",
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	entries, err := svc.ListByImport(context.Background(), importID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 for the queried import", len(entries))
	}
}

func TestHandlerListApplied(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	importID := uuid.New()
	_ = svc.Record(context.Background(), &AppliedRecordEntry{
		ImportID:       importID,
		TargetStore:    "patient_record",
		TargetRecordID: uuid.New(),
		FieldPath:      "demographics.phone",
		Operation:      OpInsert,
		NewData:        "+91-900",
		AppliedBy:      "reviewer-1",
	})

	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(importID.String())

	if err := h.ListApplied(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var entries []AppliedRecordEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 1 || entries[0].FieldPath != "demographics.phone" {
		t.Errorf("entries = %+v", entries)
	}

	// Unknown import id yields an empty list, not an error.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if err := h.ListApplied(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty array", body)
	}
}
