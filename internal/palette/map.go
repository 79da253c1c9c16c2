package palette

import "github.com/kingrea/spritepal/internal/argb"

// Map is a named substitution table from base colours to target colours.
// Entries keep their first-insertion order.
type Map struct {
	ID          string
	Name        string
	IsReference bool
	Metadata    Metadata

	order   []argb.Color
	targets map[argb.Color]argb.Color
}

// NewMap builds an empty map.
func NewMap(id, name string) *Map {
	return &Map{
		ID:      id,
		Name:    name,
		targets: map[argb.Color]argb.Color{},
	}
}

// Put records src -> dst. An existing entry for src is never overwritten;
// when it disagrees with dst the previous target is returned with
// conflict=true.
func (m *Map) Put(src, dst argb.Color) (previous argb.Color, conflict bool) {
	if m.targets == nil {
		m.targets = map[argb.Color]argb.Color{}
	}
	if prev, ok := m.targets[src]; ok {
		return prev, prev != dst
	}
	m.targets[src] = dst
	m.order = append(m.order, src)
	return dst, false
}

// Target looks up the target colour for src.
func (m *Map) Target(src argb.Color) (argb.Color, bool) {
	if m == nil {
		return 0, false
	}
	dst, ok := m.targets[src]
	return dst, ok
}

// Sources returns the source colours in insertion order.
func (m *Map) Sources() []argb.Color {
	if m == nil || len(m.order) == 0 {
		return nil
	}
	out := make([]argb.Color, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Entries returns a plain copy of the substitution table.
func (m *Map) Entries() map[argb.Color]argb.Color {
	out := make(map[argb.Color]argb.Color, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.targets {
		out[k] = v
	}
	return out
}

// SameEntries reports whether both maps hold identical substitutions,
// ignoring order, names, and identifiers.
func (m *Map) SameEntries(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	for _, src := range m.order {
		dst, ok := other.Target(src)
		if !ok || dst != m.targets[src] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := &Map{
		ID:          m.ID,
		Name:        m.Name,
		IsReference: m.IsReference,
		Metadata:    m.Metadata.Clone(),
		order:       append([]argb.Color(nil), m.order...),
		targets:     make(map[argb.Color]argb.Color, len(m.targets)),
	}
	for k, v := range m.targets {
		out.targets[k] = v
	}
	return out
}
