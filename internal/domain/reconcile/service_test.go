package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/audittrail"
	"github.com/clinrec/clinrec/internal/domain/records"
	"github.com/clinrec/clinrec/internal/platform/document"
	"github.com/clinrec/clinrec/pkg/errs"
)

type mockImportRepo struct {
	imports map[uuid.UUID]*ImportRecord
}

func newMockImportRepo() *mockImportRepo {
	return &mockImportRepo{imports: make(map[uuid.UUID]*ImportRecord)}
}

func cloneImport(rec *ImportRecord) *ImportRecord {
	b, _ := json.Marshal(rec)
	var cp ImportRecord
	_ = json.Unmarshal(b, &cp)
	return &cp
}

func (m *mockImportRepo) Create(ctx context.Context, rec *ImportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.ProcessingStatus = ProcessingPending
	rec.ReviewStatus = ReviewPending
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	m.imports[rec.ID] = cloneImport(rec)
	return nil
}

func (m *mockImportRepo) GetByID(ctx context.Context, id uuid.UUID) (*ImportRecord, error) {
	rec, ok := m.imports[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "import not found")
	}
	return cloneImport(rec), nil
}

func (m *mockImportRepo) CompleteProcessing(ctx context.Context, id uuid.UUID, extracted, snapshot document.Document, conflicts []Conflict, confidence *float64) (*ImportRecord, error) {
	rec, ok := m.imports[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "import not found")
	}
	if rec.ProcessingStatus != ProcessingPending {
		return nil, errs.New(errs.KindWriteConflict, "import is not awaiting extraction")
	}
	rec.ExtractedDoc = extracted
	rec.CurrentSnapshot = snapshot
	rec.Conflicts = conflicts
	rec.HasConflicts = len(conflicts) > 0
	rec.ConfidenceScore = confidence
	rec.ProcessingStatus = ProcessingCompleted
	rec.UpdatedAt = time.Now()
	return cloneImport(rec), nil
}

func (m *mockImportRepo) FailProcessing(ctx context.Context, id uuid.UUID, errText string) error {
	rec, ok := m.imports[id]
	if !ok {
		return errs.New(errs.KindNotFound, "import not found")
	}
	if rec.ProcessingStatus != ProcessingPending {
		return errs.New(errs.KindWriteConflict, "import is not awaiting extraction")
	}
	rec.ProcessingStatus = ProcessingFailed
	rec.ProcessingError = &errText
	return nil
}

func (m *mockImportRepo) FinalizeReview(ctx context.Context, id uuid.UUID, status, reviewerID string, approved, rejected []string, notes string, reviewedAt time.Time) error {
	rec, ok := m.imports[id]
	if !ok {
		return errs.New(errs.KindNotFound, "import not found")
	}
	if rec.ProcessingStatus != ProcessingCompleted || rec.ReviewStatus != ReviewPending {
		return errs.New(errs.KindAlreadyReviewed, "import already reviewed")
	}
	rec.ReviewStatus = status
	rec.ReviewedBy = &reviewerID
	rec.ReviewedAt = &reviewedAt
	rec.ApprovedPaths = approved
	rec.RejectedPaths = rejected
	rec.ReviewNotes = &notes
	return nil
}

func (m *mockImportRepo) List(ctx context.Context, params map[string]string, limit, offset int) ([]*ImportRecord, int, error) {
	var out []*ImportRecord
	for _, rec := range m.imports {
		out = append(out, cloneImport(rec))
	}
	return out, len(out), nil
}

func (m *mockImportRepo) clone() map[uuid.UUID]*ImportRecord {
	cp := make(map[uuid.UUID]*ImportRecord, len(m.imports))
	for id, rec := range m.imports {
		cp[id] = cloneImport(rec)
	}
	return cp
}

type mockStore struct {
	docs      map[uuid.UUID]document.Document
	recordIDs map[string]uuid.UUID
	failOn    string
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:      make(map[uuid.UUID]document.Document),
		recordIDs: make(map[string]uuid.UUID),
	}
}

func cloneDoc(doc document.Document) document.Document {
	b, _ := json.Marshal(doc)
	var cp document.Document
	_ = json.Unmarshal(b, &cp)
	if cp == nil {
		cp = document.Document{}
	}
	return cp
}

func (m *mockStore) Snapshot(ctx context.Context, patientID uuid.UUID) (document.Document, error) {
	return cloneDoc(m.docs[patientID]), nil
}

func (m *mockStore) GetNamespace(ctx context.Context, patientID uuid.UUID, namespace string) (*records.PatientRecord, error) {
	doc, ok := m.docs[patientID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "patient record not found")
	}
	v, ok := doc[namespace]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "patient record not found")
	}
	return &records.PatientRecord{PatientID: patientID, Namespace: namespace, Data: v}, nil
}

func (m *mockStore) Write(ctx context.Context, patientID uuid.UUID, fieldPath string, value interface{}) (*records.WriteResult, error) {
	if fieldPath == m.failOn {
		return nil, errs.New(errs.KindWriteConflict, "simulated write failure").WithSubject(fieldPath)
	}
	ns, err := document.RootKey(fieldPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknownFieldPath, "malformed field path", err)
	}
	doc, ok := m.docs[patientID]
	if !ok {
		doc = document.Document{}
		m.docs[patientID] = doc
	}
	_, existed := document.Get(doc, fieldPath)
	prev, err := document.Set(doc, fieldPath, value)
	if err != nil {
		return nil, errs.Wrap(errs.KindWriteConflict, "shape conflict", err)
	}
	key := patientID.String() + "/" + ns
	id, ok := m.recordIDs[key]
	if !ok {
		id = uuid.New()
		m.recordIDs[key] = id
	}
	return &records.WriteResult{RecordID: id, Previous: prev, Existed: existed}, nil
}

func (m *mockStore) clone() map[uuid.UUID]document.Document {
	cp := make(map[uuid.UUID]document.Document, len(m.docs))
	for id, doc := range m.docs {
		cp[id] = cloneDoc(doc)
	}
	return cp
}

type mockAuditRepo struct {
	entries []*audittrail.AppliedRecordEntry
}

func (m *mockAuditRepo) Append(ctx context.Context, e *audittrail.AppliedRecordEntry) error {
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockAuditRepo) ListByImport(ctx context.Context, importID uuid.UUID) ([]*audittrail.AppliedRecordEntry, error) {
	var out []*audittrail.AppliedRecordEntry
	for _, e := range m.entries {
		if e.ImportID == importID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockQueue struct {
	enqueued []uuid.UUID
}

func (m *mockQueue) Enqueue(ctx context.Context, importID uuid.UUID) error {
	m.enqueued = append(m.enqueued, importID)
	return nil
}

// mockTx emulates transaction semantics by snapshotting the in-memory state
// before the function runs and restoring it when the function fails.
type mockTx struct {
	repo  *mockImportRepo
	store *mockStore
	audit *mockAuditRepo
}

func (t *mockTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	repoSnap := t.repo.clone()
	storeSnap := t.store.clone()
	auditLen := len(t.audit.entries)
	if err := fn(ctx); err != nil {
		t.repo.imports = repoSnap
		t.store.docs = storeSnap
		t.audit.entries = t.audit.entries[:auditLen]
		return err
	}
	return nil
}

type fixture struct {
	svc   *Service
	repo  *mockImportRepo
	store *mockStore
	audit *mockAuditRepo
	queue *mockQueue
}

func newFixture() *fixture {
	repo := newMockImportRepo()
	store := newMockStore()
	audit := &mockAuditRepo{}
	queue := &mockQueue{}
	tx := &mockTx{repo: repo, store: store, audit: audit}
	svc := NewService(repo, store, audittrail.NewService(audit), queue, tx, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, store: store, audit: audit, queue: queue}
}

func submitAndExtract(t *testing.T, f *fixture, patientID uuid.UUID, extracted document.Document) *ImportRecord {
	t.Helper()
	rec, err := f.svc.Submit(context.Background(), patientID, "operator-1", []SourceFile{
		{Name: "scan.pdf", ContentType: "application/pdf", Size: 1024, StorageKey: "uploads/scan.pdf"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	rec, err = f.svc.CompleteExtraction(context.Background(), rec.ID, &ExtractionResult{Document: extracted})
	if err != nil {
		t.Fatalf("complete extraction: %v", err)
	}
	return rec
}

func TestSubmitEnqueuesExtraction(t *testing.T) {
	f := newFixture()
	rec, err := f.svc.Submit(context.Background(), uuid.New(), "operator-1", []SourceFile{{Name: "a.pdf"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Status() != "processing_pending" {
		t.Errorf("status = %q, want processing_pending", rec.Status())
	}
	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != rec.ID {
		t.Errorf("enqueued = %v, want [%s]", f.queue.enqueued, rec.ID)
	}
}

func TestSubmitRequiresFiles(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Submit(context.Background(), uuid.New(), "operator-1", nil); !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestCompleteExtractionComputesConflicts(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	f.store.docs[patientID] = document.Document{"vitals": map[string]interface{}{"bp": 118.0}}

	rec := submitAndExtract(t, f, patientID, document.Document{"vitals": map[string]interface{}{"bp": 120.0}})
	if rec.Status() != "review_pending" {
		t.Fatalf("status = %q, want review_pending", rec.Status())
	}
	if !rec.HasConflicts || len(rec.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want one", rec.Conflicts)
	}
	c := rec.Conflicts[0]
	if c.FieldPath != "vitals.bp" || c.Kind != KindCloseMatch {
		t.Errorf("conflict = %+v, want close_match at vitals.bp", c)
	}
}

func TestDecideAppliesCloseMatch(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	f.store.docs[patientID] = document.Document{"vitals": map[string]interface{}{"bp": 118.0}}
	rec := submitAndExtract(t, f, patientID, document.Document{"vitals": map[string]interface{}{"bp": 120.0}})

	decided, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1", []string{"vitals.bp"}, nil, "looks right")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.ReviewStatus != ReviewApproved {
		t.Errorf("review status = %q, want approved", decided.ReviewStatus)
	}
	if v, _ := document.Get(f.store.docs[patientID], "vitals.bp"); v != 120.0 {
		t.Errorf("stored value = %v, want 120", v)
	}
	if len(f.audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(f.audit.entries))
	}
	e := f.audit.entries[0]
	if e.Operation != audittrail.OpUpdate || e.PreviousData != 118.0 || e.NewData != 120.0 {
		t.Errorf("entry = %+v, want update 118 -> 120", e)
	}
	if e.AppliedBy != "reviewer-1" || e.FieldPath != "vitals.bp" {
		t.Errorf("entry attribution = %+v", e)
	}
}

func TestDecideInsertsMissingCurrent(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	rec := submitAndExtract(t, f, patientID, document.Document{"demographics": map[string]interface{}{"phone": "+91-900"}})

	if rec.Conflicts[0].Kind != KindMissingCurrent {
		t.Fatalf("conflict = %+v, want missing_current", rec.Conflicts[0])
	}
	decided, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1", []string{"demographics.phone"}, nil, "")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.ReviewStatus != ReviewApproved {
		t.Errorf("review status = %q, want approved", decided.ReviewStatus)
	}
	if len(f.audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(f.audit.entries))
	}
	e := f.audit.entries[0]
	if e.Operation != audittrail.OpInsert || e.PreviousData != nil {
		t.Errorf("entry = %+v, want insert with nil previous", e)
	}
	if v, _ := document.Get(f.store.docs[patientID], "demographics.phone"); v != "+91-900" {
		t.Errorf("stored value = %v, want +91-900", v)
	}
}

func TestDecidePartialAndRejected(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	f.store.docs[patientID] = document.Document{
		"vitals": map[string]interface{}{"bp": 118.0, "pulse": 70.0},
	}
	extracted := document.Document{
		"vitals": map[string]interface{}{"bp": 160.0, "pulse": 95.0},
	}

	rec := submitAndExtract(t, f, patientID, extracted)
	decided, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1", []string{"vitals.bp"}, []string{"vitals.pulse"}, "")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.ReviewStatus != ReviewPartiallyApproved {
		t.Errorf("review status = %q, want partially_approved", decided.ReviewStatus)
	}
	if v, _ := document.Get(f.store.docs[patientID], "vitals.pulse"); v != 70.0 {
		t.Errorf("rejected path was applied: pulse = %v", v)
	}

	// A second import rejected wholesale.
	rec2 := submitAndExtract(t, f, patientID, document.Document{
		"vitals": map[string]interface{}{"bp": 200.0},
	})
	decided2, err := f.svc.Decide(context.Background(), rec2.ID, "reviewer-1", nil, []string{"vitals.bp"}, "implausible")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided2.ReviewStatus != ReviewRejected {
		t.Errorf("review status = %q, want rejected", decided2.ReviewStatus)
	}
}

func TestDecideUnknownPath(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	rec := submitAndExtract(t, f, patientID, document.Document{"demographics": map[string]interface{}{"phone": "+91-900"}})

	_, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1", []string{"demographics.email"}, nil, "")
	if !errs.Is(err, errs.KindUnknownFieldPath) {
		t.Fatalf("err = %v, want UnknownFieldPath", err)
	}
	after, err := f.svc.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Status() != "review_pending" {
		t.Errorf("status = %q, want review_pending after failed decide", after.Status())
	}
	if len(f.audit.entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(f.audit.entries))
	}
}

func TestDecideOverlappingPaths(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	rec := submitAndExtract(t, f, patientID, document.Document{"demographics": map[string]interface{}{"phone": "+91-900"}})

	_, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1",
		[]string{"demographics.phone"}, []string{"demographics.phone"}, "")
	if !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument for overlapping lists", err)
	}
}

func TestDecideDuplicatePaths(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	rec := submitAndExtract(t, f, patientID, document.Document{
		"demographics": map[string]interface{}{"phone": "+91-900", "email": "a@b.in"},
	})

	_, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1",
		[]string{"demographics.phone", "demographics.phone"}, nil, "")
	if !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument for duplicated approved path", err)
	}
	after, err := f.svc.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Status() != "review_pending" {
		t.Errorf("status = %q, want review_pending after rejected decision", after.Status())
	}
	if len(f.audit.entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(f.audit.entries))
	}

	_, err = f.svc.Decide(context.Background(), rec.ID, "reviewer-1",
		nil, []string{"demographics.email", "demographics.email"}, "")
	if !errs.Is(err, errs.KindInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument for duplicated rejected path", err)
	}
}

func TestDecideAllOrNothing(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	f.store.docs[patientID] = document.Document{
		"vitals": map[string]interface{}{"bp": 118.0, "pulse": 70.0},
	}
	rec := submitAndExtract(t, f, patientID, document.Document{
		"vitals": map[string]interface{}{"bp": 160.0, "pulse": 95.0},
	})

	// The second write fails; the first must be rolled back with it.
	f.store.failOn = "vitals.pulse"
	_, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1",
		[]string{"vitals.bp", "vitals.pulse"}, nil, "")
	if !errs.Is(err, errs.KindWriteConflict) {
		t.Fatalf("err = %v, want WriteConflict", err)
	}
	if len(f.audit.entries) != 0 {
		t.Errorf("audit entries = %d, want 0 after rollback", len(f.audit.entries))
	}
	if v, _ := document.Get(f.store.docs[patientID], "vitals.bp"); v != 118.0 {
		t.Errorf("bp = %v, want 118 (first write rolled back)", v)
	}
	after, _ := f.svc.Get(context.Background(), rec.ID)
	if after.Status() != "review_pending" {
		t.Errorf("status = %q, want review_pending so the decide can be retried", after.Status())
	}

	// Retry once the conflict clears.
	f.store.failOn = ""
	decided, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1",
		[]string{"vitals.bp", "vitals.pulse"}, nil, "")
	if err != nil {
		t.Fatalf("retry decide: %v", err)
	}
	if decided.ReviewStatus != ReviewApproved || len(f.audit.entries) != 2 {
		t.Errorf("retry: status=%q entries=%d, want approved with 2 entries", decided.ReviewStatus, len(f.audit.entries))
	}
}

func TestDecideTwice(t *testing.T) {
	f := newFixture()
	patientID := uuid.New()
	rec := submitAndExtract(t, f, patientID, document.Document{"demographics": map[string]interface{}{"phone": "+91-900"}})

	if _, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1", []string{"demographics.phone"}, nil, ""); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	before := len(f.audit.entries)

	_, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-2", []string{"demographics.phone"}, nil, "")
	if !errs.Is(err, errs.KindAlreadyReviewed) {
		t.Fatalf("err = %v, want AlreadyReviewed", err)
	}
	if len(f.audit.entries) != before {
		t.Errorf("audit grew on second decide: %d -> %d", before, len(f.audit.entries))
	}
}

func TestFailedExtractionIsTerminal(t *testing.T) {
	f := newFixture()
	rec, err := f.svc.Submit(context.Background(), uuid.New(), "operator-1", []SourceFile{{Name: "a.pdf"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.FailExtraction(context.Background(), rec.ID, errs.New(errs.KindExtraction, "unreadable scan")); err != nil {
		t.Fatalf("fail extraction: %v", err)
	}
	after, _ := f.svc.Get(context.Background(), rec.ID)
	if after.Status() != "processing_failed" {
		t.Fatalf("status = %q, want processing_failed", after.Status())
	}
	if after.ProcessingError == nil || *after.ProcessingError == "" {
		t.Error("processing error text not stored")
	}
	if _, err := f.svc.Decide(context.Background(), rec.ID, "reviewer-1", nil, nil, ""); !errs.Is(err, errs.KindWriteConflict) {
		t.Errorf("decide on failed import err = %v, want WriteConflict", err)
	}
}
