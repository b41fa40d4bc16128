// Package hydrate turns storage rows into domain values and back. Legacy
// column names are handled by declarative fallback chains instead of ad hoc
// lookups in every mapper.
package hydrate

import (
	"fmt"
	"strings"

	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// Attribute is one logical field of an entity. Columns lists the primary
// column first, followed by legacy fallbacks in the order they are tried.
type Attribute struct {
	Name     string
	Columns  []string
	Required bool
	Default  any
	// JSON marks a structured value stored as a JSON document.
	JSON bool
}

// Column returns the primary column.
func (a Attribute) Column() string { return a.Columns[0] }

// Mapping is the immutable table of attributes for one entity.
type Mapping struct {
	entity string
	attrs  []Attribute
	index  map[string]int
	// write holds, per attribute, the column writes go to once the mapping is
	// bound to a probed schema.
	write map[string]string
}

// NewMapping validates attrs and returns a Mapping.
func NewMapping(entity string, attrs ...Attribute) (*Mapping, error) {
	m := &Mapping{
		entity: entity,
		attrs:  make([]Attribute, 0, len(attrs)),
		index:  make(map[string]int, len(attrs)),
		write:  make(map[string]string, len(attrs)),
	}
	for _, a := range attrs {
		if a.Name == "" || len(a.Columns) == 0 {
			return nil, fmt.Errorf("%s mapping: attribute %q needs a name and at least one column", entity, a.Name)
		}
		if _, dup := m.index[a.Name]; dup {
			return nil, fmt.Errorf("%s mapping: duplicate attribute %q", entity, a.Name)
		}
		cols := make([]string, len(a.Columns))
		for i, c := range a.Columns {
			if !criteria.ValidIdentifier(c) {
				return nil, fmt.Errorf("%s mapping: attribute %q has invalid column %q", entity, a.Name, c)
			}
			cols[i] = strings.ToLower(c)
		}
		a.Columns = cols
		m.index[a.Name] = len(m.attrs)
		m.attrs = append(m.attrs, a)
		m.write[a.Name] = cols[0]
	}
	return m, nil
}

// MustMapping is NewMapping for package-level definitions.
func MustMapping(entity string, attrs ...Attribute) *Mapping {
	m, err := NewMapping(entity, attrs...)
	if err != nil {
		panic(err)
	}
	return m
}

// Entity returns the entity name.
func (m *Mapping) Entity() string { return m.entity }

// Attribute looks up an attribute by logical name.
func (m *Mapping) Attribute(name string) (Attribute, bool) {
	i, ok := m.index[name]
	if !ok {
		return Attribute{}, false
	}
	return m.attrs[i], true
}

// Attributes returns the attributes in declaration order.
func (m *Mapping) Attributes() []Attribute {
	out := make([]Attribute, len(m.attrs))
	copy(out, m.attrs)
	return out
}

// Columns returns every candidate column of every attribute.
func (m *Mapping) Columns() []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range m.attrs {
		for _, c := range a.Columns {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// WriteColumn returns the column writes of attribute name go to.
func (m *Mapping) WriteColumn(name string) (string, bool) {
	c, ok := m.write[name]
	return c, ok
}

// Bind returns a copy of m whose write columns are the first candidate
// present in columns. A required attribute with no candidate present is a
// MissingRequiredColumn error. An empty column set leaves m unchanged.
func (m *Mapping) Bind(columns []string) (*Mapping, error) {
	if len(columns) == 0 {
		return m, nil
	}
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[strings.ToLower(c)] = true
	}

	bound := &Mapping{entity: m.entity, attrs: m.attrs, index: m.index, write: make(map[string]string, len(m.attrs))}
	for _, a := range m.attrs {
		col := ""
		for _, c := range a.Columns {
			if have[c] {
				col = c
				break
			}
		}
		if col == "" {
			if a.Required {
				return nil, storeerr.MissingRequiredColumn(m.entity, a.Name, a.Columns)
			}
			col = a.Column()
		}
		bound.write[a.Name] = col
	}
	return bound, nil
}

// Missing returns the attributes that have no candidate column in columns.
func (m *Mapping) Missing(columns []string) (required, optional []string) {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[strings.ToLower(c)] = true
	}
	for _, a := range m.attrs {
		found := false
		for _, c := range a.Columns {
			if have[c] {
				found = true
				break
			}
		}
		if found {
			continue
		}
		if a.Required {
			required = append(required, a.Name)
		} else {
			optional = append(optional, a.Name)
		}
	}
	return required, optional
}
