package reconcile

import (
	"github.com/clinrec/clinrec/internal/platform/document"
)

// closeMatchTolerance is the relative tolerance within which two unequal
// numeric values are flagged close_match instead of value_mismatch.
const closeMatchTolerance = 0.05

// Diff flattens both documents and classifies every path present in either.
// It is pure and deterministic: identical inputs produce identical output,
// with conflicts ordered lexicographically by field path. Arrays are compared
// positionally.
//
// Paths present only in the current record require no action and produce no
// conflict. Paths present only in the extracted document are reported as
// missing_current so a reviewer can approve them as additions.
func Diff(current, extracted document.Document) []Conflict {
	curFlat := document.Flatten(current)
	extFlat := document.Flatten(extracted)

	union := make(map[string]interface{}, len(curFlat)+len(extFlat))
	for p := range curFlat {
		union[p] = nil
	}
	for p := range extFlat {
		union[p] = nil
	}

	var conflicts []Conflict
	for _, path := range document.SortedPaths(union) {
		cv, inCurrent := curFlat[path]
		ev, inExtracted := extFlat[path]
		switch {
		case !inExtracted:
			continue
		case !inCurrent:
			conflicts = append(conflicts, Conflict{
				FieldPath:      path,
				Kind:           KindMissingCurrent,
				ExtractedValue: ev,
			})
		case document.Equal(cv, ev):
			continue
		case document.WithinTolerance(cv, ev, closeMatchTolerance):
			conflicts = append(conflicts, Conflict{
				FieldPath:      path,
				Kind:           KindCloseMatch,
				CurrentValue:   cv,
				ExtractedValue: ev,
			})
		default:
			conflicts = append(conflicts, Conflict{
				FieldPath:      path,
				Kind:           KindValueMismatch,
				CurrentValue:   cv,
				ExtractedValue: ev,
			})
		}
	}
	return conflicts
}
