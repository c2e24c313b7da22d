// Package document models the schema-less clinical documents exchanged
// between the record store, the extraction pipeline and the reconciliation
// engine. A document is a JSON-shaped tree; every scalar in it is addressable
// by a field path such as "vitals[0].systolic_bp". The same flattening and
// addressing rules are used for diffing and for applying approved values, so
// a path produced by the differ is always writable.
package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Document is a decoded JSON object keyed by target-store namespace or
// arbitrary nested keys. Scalar leaves are string, float64, bool or nil,
// matching encoding/json decoding.
type Document map[string]interface{}

// Flatten walks the document and returns every scalar leaf as a
// path -> value pair. Object keys are joined with ".", array elements are
// addressed positionally with "[i]". Empty objects and arrays contribute
// no entries.
func Flatten(doc Document) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range doc {
		flattenValue(k, v, out)
	}
	return out
}

func flattenValue(path string, v interface{}, out map[string]interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			flattenValue(path+"."+k, child, out)
		}
	case []interface{}:
		for i, child := range val {
			flattenValue(fmt.Sprintf("%s[%d]", path, i), child, out)
		}
	default:
		out[path] = val
	}
}

// SortedPaths returns the paths of a flattened document in lexicographic
// order. Diff output ordering depends on this being stable.
func SortedPaths(flat map[string]interface{}) []string {
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// segment is one step of a parsed field path: either an object key or an
// array index.
type segment struct {
	key   string
	index int
	isIdx bool
}

// parsePath splits a field path into its segments. It rejects empty keys,
// malformed brackets and negative indexes.
func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("field path %q has an empty segment", path)
		}
		key := part
		var idxParts []string
		if i := strings.IndexByte(part, '['); i >= 0 {
			key = part[:i]
			rest := part[i:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("field path %q: malformed index in %q", path, part)
				}
				close := strings.IndexByte(rest, ']')
				if close < 0 {
					return nil, fmt.Errorf("field path %q: unclosed index in %q", path, part)
				}
				idxParts = append(idxParts, rest[1:close])
				rest = rest[close+1:]
			}
		}
		if key == "" {
			return nil, fmt.Errorf("field path %q: index without key in %q", path, part)
		}
		segs = append(segs, segment{key: key})
		for _, raw := range idxParts {
			idx, err := strconv.Atoi(raw)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("field path %q: invalid array index %q", path, raw)
			}
			segs = append(segs, segment{index: idx, isIdx: true})
		}
	}
	return segs, nil
}

// RootKey returns the first object key of a field path, e.g. "vitals" for
// "vitals[0].systolic_bp".
func RootKey(path string) (string, error) {
	segs, err := parsePath(path)
	if err != nil {
		return "", err
	}
	return segs[0].key, nil
}

// Get returns the value at path and whether it exists.
func Get(doc Document, path string) (interface{}, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}
	var cur interface{} = map[string]interface{}(doc)
	for _, s := range segs {
		if s.isIdx {
			arr, ok := cur.([]interface{})
			if !ok || s.index >= len(arr) {
				return nil, false
			}
			cur = arr[s.index]
			continue
		}
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[s.key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at path, creating intermediate objects and extending
// arrays with nulls as needed. It returns the previous value at that path,
// or nil if the path was absent. Setting through an existing scalar of the
// wrong shape is an error rather than a silent overwrite of the container.
func Set(doc Document, path string, value interface{}) (interface{}, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	root := map[string]interface{}(doc)
	prev, err := setInto(root, segs, path, value)
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func setInto(obj map[string]interface{}, segs []segment, path string, value interface{}) (interface{}, error) {
	s := segs[0]
	if s.isIdx {
		return nil, fmt.Errorf("field path %q: cannot index into object", path)
	}
	if len(segs) == 1 {
		prev := obj[s.key]
		obj[s.key] = value
		return prev, nil
	}

	next := segs[1]
	if next.isIdx {
		arr, ok := obj[s.key].([]interface{})
		if obj[s.key] != nil && !ok {
			return nil, fmt.Errorf("field path %q: %q is not an array", path, s.key)
		}
		for len(arr) <= next.index {
			arr = append(arr, nil)
		}
		prev, err := setIntoArray(arr, segs[1:], path, value)
		if err != nil {
			return nil, err
		}
		obj[s.key] = arr
		return prev, nil
	}

	child, ok := obj[s.key].(map[string]interface{})
	if obj[s.key] != nil && !ok {
		return nil, fmt.Errorf("field path %q: %q is not an object", path, s.key)
	}
	if child == nil {
		child = make(map[string]interface{})
		obj[s.key] = child
	}
	return setInto(child, segs[1:], path, value)
}

func setIntoArray(arr []interface{}, segs []segment, path string, value interface{}) (interface{}, error) {
	s := segs[0]
	if len(segs) == 1 {
		prev := arr[s.index]
		arr[s.index] = value
		return prev, nil
	}

	next := segs[1]
	if next.isIdx {
		inner, ok := arr[s.index].([]interface{})
		if arr[s.index] != nil && !ok {
			return nil, fmt.Errorf("field path %q: element %d is not an array", path, s.index)
		}
		for len(inner) <= next.index {
			inner = append(inner, nil)
		}
		prev, err := setIntoArray(inner, segs[1:], path, value)
		if err != nil {
			return nil, err
		}
		arr[s.index] = inner
		return prev, nil
	}

	child, ok := arr[s.index].(map[string]interface{})
	if arr[s.index] != nil && !ok {
		return nil, fmt.Errorf("field path %q: element %d is not an object", path, s.index)
	}
	if child == nil {
		child = make(map[string]interface{})
		arr[s.index] = child
	}
	return setInto(child, segs[1:], path, value)
}

// ValidPath reports whether path conforms to the addressing grammar.
func ValidPath(path string) bool {
	_, err := parsePath(path)
	return err == nil
}

// Equal compares two scalar leaves with kind-aware semantics: numbers
// compare numerically, strings compare case-insensitively after whitespace
// normalization, and everything else compares exactly.
func Equal(a, b interface{}) bool {
	if af, aok := asNumber(a); aok {
		bf, bok := asNumber(b)
		return bok && af == bf
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		return bok && strings.EqualFold(normalizeSpace(as), normalizeSpace(bs))
	}
	return a == b
}

// WithinTolerance reports whether two values are both numeric and differ by
// at most the given relative fraction of the larger magnitude.
func WithinTolerance(a, b interface{}, tolerance float64) bool {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if !aok || !bok {
		return false
	}
	diff := math.Abs(af - bf)
	mag := math.Abs(af)
	if m := math.Abs(bf); m > mag {
		mag = m
	}
	if mag == 0 {
		return diff == 0
	}
	return diff/mag <= tolerance
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
