package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCategory is returned when a category has no entry in the dictionary.
var ErrUnknownCategory = errors.New("unknown category")

// LabelDictionary is a bijective mapping between category names and integer
// label ids. Names are kept ordered by id.
type LabelDictionary struct {
	toID  map[string]int
	names []string // index = position in id order
	ids   []int
}

// NewLabelDictionary builds a dictionary from an explicit name -> id mapping.
// Ids and names must both be unique.
func NewLabelDictionary(m map[string]int) (*LabelDictionary, error) {
	if len(m) == 0 {
		return nil, errors.New("labels: empty label mapping")
	}
	type entry struct {
		name string
		id   int
	}
	entries := make([]entry, 0, len(m))
	seen := make(map[int]string, len(m))
	for name, id := range m {
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("labels: id %d assigned to both %q and %q", id, other, name)
		}
		seen[id] = name
		entries = append(entries, entry{name, id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	d := &LabelDictionary{toID: make(map[string]int, len(m))}
	for _, e := range entries {
		d.toID[e.name] = e.id
		d.names = append(d.names, e.name)
		d.ids = append(d.ids, e.id)
	}
	return d, nil
}

// LabelsFromNotes assigns ids 0..k-1 to the distinct categories of notes in
// order of first appearance.
func LabelsFromNotes(notes []Note) (*LabelDictionary, error) {
	m := make(map[string]int)
	for _, n := range notes {
		if _, ok := m[n.Category]; !ok {
			m[n.Category] = len(m)
		}
	}
	return NewLabelDictionary(m)
}

// Encode returns the id for a category name.
func (d *LabelDictionary) Encode(name string) (int, error) {
	id, ok := d.toID[name]
	if !ok {
		return 0, fmt.Errorf("labels: %w: %q", ErrUnknownCategory, name)
	}
	return id, nil
}

// Decode returns the category name for an id.
func (d *LabelDictionary) Decode(id int) (string, error) {
	i := d.index(id)
	if i < 0 {
		return "", fmt.Errorf("labels: unknown label id %d", id)
	}
	return d.names[i], nil
}

// Index returns the position of id in id order, or -1.
func (d *LabelDictionary) Index(id int) int {
	return d.index(id)
}

func (d *LabelDictionary) index(id int) int {
	i := sort.SearchInts(d.ids, id)
	if i < len(d.ids) && d.ids[i] == id {
		return i
	}
	return -1
}

// Names returns category names ordered by id.
func (d *LabelDictionary) Names() []string {
	return append([]string(nil), d.names...)
}

// IDs returns the label ids in ascending order.
func (d *LabelDictionary) IDs() []int {
	return append([]int(nil), d.ids...)
}

// Len returns the number of categories.
func (d *LabelDictionary) Len() int {
	return len(d.names)
}

// Map returns a copy of the name -> id mapping.
func (d *LabelDictionary) Map() map[string]int {
	m := make(map[string]int, len(d.toID))
	for k, v := range d.toID {
		m[k] = v
	}
	return m
}

// Validate checks that every note category is covered by the dictionary.
func (d *LabelDictionary) Validate(notes []Note) error {
	for i, n := range notes {
		if _, ok := d.toID[n.Category]; !ok {
			return fmt.Errorf("labels: note %d: %w: %q", i, ErrUnknownCategory, n.Category)
		}
	}
	return nil
}
