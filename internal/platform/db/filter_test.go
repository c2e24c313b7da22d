package db

import (
	"reflect"
	"testing"
)

func TestListQuery_NoFilters(t *testing.T) {
	q := NewListQuery("import_record", "id, review_status")
	q.OrderBy("created_at DESC")

	if got := q.CountSQL(); got != "SELECT COUNT(*) FROM import_record WHERE 1=1" {
		t.Errorf("CountSQL = %q", got)
	}
	want := "SELECT id, review_status FROM import_record WHERE 1=1 ORDER BY created_at DESC LIMIT $1 OFFSET $2"
	if got := q.DataSQL(); got != want {
		t.Errorf("DataSQL = %q, want %q", got, want)
	}
	if got := q.DataArgs(20, 0); !reflect.DeepEqual(got, []interface{}{20, 0}) {
		t.Errorf("DataArgs = %v", got)
	}
}

func TestListQuery_ApplyParams_StableOrder(t *testing.T) {
	params := map[string]string{
		"review_status": "review_pending",
		"patient_id":    "p-1",
		"unknown":       "ignored",
	}
	configs := map[string]FilterConfig{
		"patient_id":    {Type: FilterExact, Column: "patient_id"},
		"review_status": {Type: FilterExact, Column: "review_status"},
	}

	q := NewListQuery("import_record", "id")
	q.ApplyParams(params, configs)

	want := "SELECT COUNT(*) FROM import_record WHERE 1=1 AND patient_id = $1 AND review_status = $2"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL = %q, want %q", got, want)
	}
	if got := q.CountArgs(); !reflect.DeepEqual(got, []interface{}{"p-1", "review_pending"}) {
		t.Errorf("CountArgs = %v", got)
	}
}

func TestListQuery_ILike(t *testing.T) {
	q := NewListQuery("field_definition", "field_name")
	q.ApplyParams(map[string]string{"label": "pressure"}, map[string]FilterConfig{
		"label": {Type: FilterILike, Column: "display_label"},
	})
	want := "SELECT COUNT(*) FROM field_definition WHERE 1=1 AND display_label ILIKE $1"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL = %q, want %q", got, want)
	}
	if got := q.CountArgs(); !reflect.DeepEqual(got, []interface{}{"%pressure%"}) {
		t.Errorf("CountArgs = %v", got)
	}
}
