package mesh

import "fmt"

// Tag is a named scalar attached to elements. Values are indexed by element
// slot; unset slots report ok=false from Get.
type Tag struct {
	Name   string
	values []float64
	set    []bool
}

// CreateTag creates a new element tag. Tag names are unique per mesh.
func (m *Mesh) CreateTag(name string) (*Tag, error) {
	if m.tags == nil {
		m.tags = make(map[string]*Tag)
	}
	if _, exists := m.tags[name]; exists {
		return nil, fmt.Errorf("tag %q already exists", name)
	}
	t := &Tag{
		Name:   name,
		values: make([]float64, len(m.Elements)),
		set:    make([]bool, len(m.Elements)),
	}
	m.tags[name] = t
	return t, nil
}

// FindTag returns the tag with the given name, or nil
func (m *Mesh) FindTag(name string) *Tag {
	return m.tags[name]
}

// HasTag reports whether a tag with the given name exists
func (m *Mesh) HasTag(name string) bool {
	_, ok := m.tags[name]
	return ok
}

// Tags lists the names of all live tags
func (m *Mesh) Tags() (names []string) {
	for name := range m.tags {
		names = append(names, name)
	}
	return
}

// SetTag sets the value of t on element e
func (m *Mesh) SetTag(e int, t *Tag, value float64) {
	if e >= len(t.values) {
		grow := e + 1 - len(t.values)
		t.values = append(t.values, make([]float64, grow)...)
		t.set = append(t.set, make([]bool, grow)...)
	}
	t.values[e] = value
	t.set[e] = true
}

// GetTag returns the value of t on element e
func (m *Mesh) GetTag(e int, t *Tag) (value float64, ok bool) {
	if e < 0 || e >= len(t.values) || !t.set[e] {
		return 0, false
	}
	return t.values[e], true
}

// RemoveTag clears t from every element of dimension dim
func (m *Mesh) RemoveTag(t *Tag, dim int) {
	for e := range t.set {
		if e < len(m.ElementTypes) && m.ElementTypes[e].Dimension() == dim {
			t.set[e] = false
			t.values[e] = 0
		}
	}
}

// CountTagged returns the number of elements carrying a value of t
func (m *Mesh) CountTagged(t *Tag) (n int) {
	for _, s := range t.set {
		if s {
			n++
		}
	}
	return
}

// DestroyTag deletes the tag. Every value must have been removed first.
func (m *Mesh) DestroyTag(t *Tag) error {
	if n := m.CountTagged(t); n != 0 {
		return fmt.Errorf("tag %q still set on %d elements", t.Name, n)
	}
	delete(m.tags, t.Name)
	return nil
}
