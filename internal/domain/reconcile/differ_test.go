package reconcile

import (
	"reflect"
	"testing"

	"github.com/clinrec/clinrec/internal/platform/document"
)

func TestDiffIdenticalDocuments(t *testing.T) {
	doc := document.Document{
		"demographics": map[string]interface{}{"phone": "+91-900", "city": "Pune"},
		"vitals": []interface{}{
			map[string]interface{}{"systolic_bp": 120.0, "diastolic_bp": 80.0},
		},
	}
	if got := Diff(doc, doc); len(got) != 0 {
		t.Fatalf("diff(d, d) = %+v, want empty", got)
	}
}

func TestDiffDeterministic(t *testing.T) {
	current := document.Document{
		"vitals": []interface{}{map[string]interface{}{"systolic_bp": 118.0}},
		"demographics": map[string]interface{}{
			"phone": "+91-900",
		},
	}
	extracted := document.Document{
		"vitals": []interface{}{map[string]interface{}{"systolic_bp": 160.0}},
		"demographics": map[string]interface{}{
			"phone": "+91-901",
			"city":  "Pune",
		},
	}
	first := Diff(current, extracted)
	second := Diff(current, extracted)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("diff not deterministic:\n%+v\n%+v", first, second)
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].FieldPath >= first[i].FieldPath {
			t.Fatalf("conflicts not sorted: %q before %q", first[i-1].FieldPath, first[i].FieldPath)
		}
	}
}

func TestDiffCloseMatchWithinTolerance(t *testing.T) {
	current := document.Document{"vitals": map[string]interface{}{"bp": 118.0}}
	extracted := document.Document{"vitals": map[string]interface{}{"bp": 120.0}}

	got := Diff(current, extracted)
	if len(got) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(got))
	}
	c := got[0]
	if c.Kind != KindCloseMatch || c.FieldPath != "vitals.bp" {
		t.Errorf("conflict = %+v, want close_match at vitals.bp", c)
	}
}

func TestDiffValueMismatchBeyondTolerance(t *testing.T) {
	current := document.Document{"vitals": map[string]interface{}{"bp": 118.0}}
	extracted := document.Document{"vitals": map[string]interface{}{"bp": 160.0}}

	got := Diff(current, extracted)
	if len(got) != 1 || got[0].Kind != KindValueMismatch {
		t.Fatalf("got %+v, want one value_mismatch", got)
	}
}

func TestDiffMissingCurrentIsAdditive(t *testing.T) {
	current := document.Document{}
	extracted := document.Document{"demographics": map[string]interface{}{"phone": "+91-900"}}

	got := Diff(current, extracted)
	if len(got) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(got))
	}
	c := got[0]
	if c.Kind != KindMissingCurrent || c.FieldPath != "demographics.phone" || c.ExtractedValue != "+91-900" {
		t.Errorf("conflict = %+v, want missing_current for demographics.phone", c)
	}
}

func TestDiffCurrentOnlyPathsIgnored(t *testing.T) {
	current := document.Document{
		"demographics": map[string]interface{}{"phone": "+91-900", "city": "Pune"},
	}
	extracted := document.Document{
		"demographics": map[string]interface{}{"phone": "+91-900"},
	}
	if got := Diff(current, extracted); len(got) != 0 {
		t.Fatalf("got %+v, want empty: current-only paths require no action", got)
	}
}

func TestDiffTextEqualityIsLenient(t *testing.T) {
	current := document.Document{"demographics": map[string]interface{}{"city": "  pune "}}
	extracted := document.Document{"demographics": map[string]interface{}{"city": "Pune"}}
	if got := Diff(current, extracted); len(got) != 0 {
		t.Fatalf("got %+v, want empty: text compares case/whitespace-insensitively", got)
	}
}

func TestDiffArraysComparedPositionally(t *testing.T) {
	current := document.Document{
		"vitals": []interface{}{
			map[string]interface{}{"systolic_bp": 120.0},
			map[string]interface{}{"systolic_bp": 130.0},
		},
	}
	// Same readings with a new one prepended: every index shifts.
	extracted := document.Document{
		"vitals": []interface{}{
			map[string]interface{}{"systolic_bp": 110.0},
			map[string]interface{}{"systolic_bp": 120.0},
			map[string]interface{}{"systolic_bp": 130.0},
		},
	}
	got := Diff(current, extracted)
	if len(got) != 3 {
		t.Fatalf("got %d conflicts, want 3 (positional comparison shifts every index)", len(got))
	}
	if got[2].Kind != KindMissingCurrent {
		t.Errorf("last conflict = %+v, want missing_current for the new tail index", got[2])
	}
}
