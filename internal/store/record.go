package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

const (
	CollectionEvents = "events"
	CollectionRooms  = "rooms"

	fieldID           = "id"
	fieldParticipants = "participants"
	fieldUpdatedAt    = "updatedAt"
)

// Record is one JSON document of a collection.
type Record map[string]any

// Query matches records whose fields equal every entry. Keys may be dotted
// paths into nested objects ("currentLecture.id"). A nil value matches an
// absent or null field.
type Query map[string]any

// Patch is merged over an existing record. A nil value removes the field.
type Patch map[string]any

// Document is the whole persisted state: collection name -> records.
type Document map[string][]Record

func (r Record) clone() Record {
	if r == nil {
		return nil
	}
	return deepCopy(map[string]any(r)).(map[string]any)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = deepCopy(vv)
		}
		return m
	case Record:
		return deepCopy(map[string]any(t))
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = deepCopy(vv)
		}
		return s
	default:
		return v
	}
}

// ID returns the record's "id" field as a string.
func (r Record) ID() string {
	id, _ := r[fieldID].(string)
	return id
}

// normalize turns any JSON-encodable value into its generic JSON form so
// records read from disk and records built in memory compare equal.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = nil
			continue
		}
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func lookup(r map[string]any, path string) (any, bool) {
	var cur any = r
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// matches expects q to be normalized already.
func matches(r Record, q map[string]any) bool {
	for key, want := range q {
		got, ok := lookup(r, key)
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Encode converts a typed value into a Record.
func Encode(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return r, nil
}

// Decode converts a Record into T.
func Decode[T any](r Record) (T, error) {
	var out T
	b, err := json.Marshal(r)
	if err != nil {
		return out, fmt.Errorf("store: decode: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("store: decode: %w", err)
	}
	return out, nil
}

func DecodeAll[T any](rs []Record) ([]T, error) {
	out := make([]T, 0, len(rs))
	for _, r := range rs {
		v, err := Decode[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
