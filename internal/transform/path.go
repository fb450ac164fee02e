package transform

import (
	"strings"

	"github.com/igualparatodos/multiwoven/internal/core"
)

// Assign sets value at path inside dst, creating intermediate objects.
// An append segment pushes onto the array under its key. When more segments
// follow, the last element of that array is reused if it is an object;
// otherwise a new element is appended.
func Assign(dst map[string]any, path core.Path, value any) {
	if len(path) == 0 {
		return
	}
	seg, rest := path[0], path[1:]

	if !seg.Append {
		if len(rest) == 0 {
			dst[seg.Key] = value
			return
		}
		child, ok := dst[seg.Key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			dst[seg.Key] = child
		}
		Assign(child, rest, value)
		return
	}

	arr, _ := dst[seg.Key].([]any)
	if len(rest) == 0 {
		dst[seg.Key] = append(arr, value)
		return
	}

	var elem map[string]any
	if n := len(arr); n > 0 {
		elem, _ = arr[n-1].(map[string]any)
	}
	if elem == nil {
		elem = make(map[string]any)
		arr = append(arr, elem)
	}
	dst[seg.Key] = arr
	Assign(elem, rest, value)
}

// sourceValue reads key from the record; a dotted key that is not present
// verbatim walks nested objects.
func sourceValue(record map[string]any, key string) (any, bool) {
	if v, ok := record[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	var node any = record
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return node, true
}
