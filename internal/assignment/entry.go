package assignment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Kind tags how an Entry is stored.
type Kind int

const (
	// KindMulti is the current format: a JSON array of names.
	KindMulti Kind = iota
	// KindLegacy is the old single-student format: a bare JSON string.
	KindLegacy
)

func (k Kind) String() string {
	if k == KindLegacy {
		return "legacy"
	}
	return "multi"
}

// Entry is the value stored for one date. Every read goes through Students,
// which presents a legacy entry as a one-element list.
type Entry struct {
	kind  Kind
	names []string
}

func Legacy(name string) Entry {
	return Entry{kind: KindLegacy, names: []string{name}}
}

func Multi(names ...string) Entry {
	return Entry{kind: KindMulti, names: slices.Clone(names)}
}

func (e Entry) Kind() Kind { return e.kind }

func (e Entry) IsLegacy() bool { return e.kind == KindLegacy }

// Students returns the normalized list of assigned names.
func (e Entry) Students() []string {
	if e.names == nil {
		return []string{}
	}
	return slices.Clone(e.names)
}

func (e Entry) Len() int { return len(e.names) }

// Contains is an exact, case-sensitive membership test.
func (e Entry) Contains(name string) bool {
	return slices.Contains(e.names, name)
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.kind == KindLegacy {
		return json.Marshal(e.names[0])
	}
	return json.Marshal(e.Students())
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty assignment entry")
	}

	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*e = Legacy(name)
	case '[':
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return err
		}
		*e = Multi(names...)
	default:
		return fmt.Errorf("assignment entry must be a string or an array, got %s", data)
	}
	return nil
}

// Map is the date key -> Entry mapping as persisted.
type Map map[string]Entry

// Clone returns a shallow copy; entries are never mutated in place.
func (m Map) Clone() Map {
	if m == nil {
		return Map{}
	}
	return maps.Clone(m)
}

// Dates returns every date key, sorted.
func (m Map) Dates() []string {
	return slices.Sorted(maps.Keys(m))
}

// Normalized returns the map with every entry as a plain list of names.
func (m Map) Normalized() map[string][]string {
	out := make(map[string][]string, len(m))
	for date, e := range m {
		out[date] = e.Students()
	}
	return out
}
