package engine

import (
	"fmt"
	"strings"

	"github.com/kingrea/spritepal/internal/argb"
	"github.com/kingrea/spritepal/internal/imaging"
	"github.com/kingrea/spritepal/internal/palette"
)

// DefaultReferenceName names the identity map when nothing else does.
const DefaultReferenceName = "Base"

const untitledPalette = "Untitled Palette"

// Option customizes a State.
type Option func(*State)

// WithIDs overrides how identifiers are assigned.
func WithIDs(ids palette.IDSource) Option {
	return func(s *State) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithNamer overrides how new colour records are named.
func WithNamer(namer palette.Namer) Option {
	return func(s *State) {
		if namer != nil {
			s.namer = namer
		}
	}
}

// WithReferenceName sets the name of the synthesized identity map.
func WithReferenceName(name string) Option {
	return func(s *State) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			s.referenceName = trimmed
		}
	}
}

// State owns the colour table and palette maps for one document.
type State struct {
	ids           palette.IDSource
	namer         palette.Namer
	referenceName string

	colors     map[argb.Color]*palette.Record
	colorOrder []argb.Color
	idIndex    map[string]argb.Color

	palettes     map[string]*palette.Map
	paletteOrder []string
	reference    *palette.Map

	dims       Dimensions
	basePixels []argb.Color
	header     palette.Metadata
	warnings   []Warning
}

// New builds an empty state.
func New(opts ...Option) *State {
	s := &State{
		ids:           palette.StableIDs{},
		namer:         palette.PlaceholderNamer(palette.DefaultColorName),
		referenceName: DefaultReferenceName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.Reset()
	return s
}

// Reset drops every colour, map, warning, and the base image. Options stay.
func (s *State) Reset() {
	s.colors = map[argb.Color]*palette.Record{}
	s.colorOrder = nil
	s.idIndex = map[string]argb.Color{}
	s.palettes = map[string]*palette.Map{}
	s.paletteOrder = nil
	s.reference = nil
	s.dims = Dimensions{}
	s.basePixels = nil
	s.header = nil
	s.warnings = nil
}

// Dimensions returns the size of the current base image.
func (s *State) Dimensions() Dimensions {
	return s.dims
}

// HasBaseImage reports whether a base image has been scanned.
func (s *State) HasBaseImage() bool {
	return s.basePixels != nil
}

// Colors returns the colour table in discovery order.
func (s *State) Colors() []palette.Record {
	out := make([]palette.Record, 0, len(s.colorOrder))
	for _, c := range s.colorOrder {
		out = append(out, s.colors[c].Clone())
	}
	return out
}

// Color looks up the record for a colour value.
func (s *State) Color(c argb.Color) (palette.Record, bool) {
	rec, ok := s.colors[c]
	if !ok {
		return palette.Record{}, false
	}
	return rec.Clone(), true
}

// Palettes returns copies of the non-reference maps in insertion order.
func (s *State) Palettes() []*palette.Map {
	out := make([]*palette.Map, 0, len(s.paletteOrder))
	for _, name := range s.paletteOrder {
		out = append(out, s.palettes[name].Clone())
	}
	return out
}

// Palette returns a copy of the named map.
func (s *State) Palette(name string) (*palette.Map, bool) {
	m, ok := s.palettes[name]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Reference returns the identity map covering the whole colour table.
// Entries imported from a document override the identity mapping.
// It is nil while the colour table is empty.
func (s *State) Reference() *palette.Map {
	if s.reference == nil {
		return nil
	}
	out := palette.NewMap(s.reference.ID, s.reference.Name)
	out.IsReference = true
	out.Metadata = s.reference.Metadata.Clone()
	for _, c := range s.colorOrder {
		if dst, ok := s.reference.Target(c); ok {
			out.Put(c, dst)
			continue
		}
		out.Put(c, c)
	}
	return out
}

// Header returns the document-level fields kept from the last base document.
func (s *State) Header() palette.Metadata {
	return s.header.Clone()
}

// Warnings returns the pending warnings without clearing them.
func (s *State) Warnings() []Warning {
	return append([]Warning(nil), s.warnings...)
}

// DrainWarnings returns the pending warnings and clears them.
func (s *State) DrainWarnings() []Warning {
	out := s.warnings
	s.warnings = nil
	return out
}

// DeriveBase scans the base image. Every opaque pixel colour not already in
// the table gets a new record; the per-pixel colours are kept as the join
// key for DerivePalette.
func (s *State) DeriveBase(name string, g imaging.Grid) error {
	if err := g.Validate(); err != nil {
		return &imaging.DecodeError{Name: name, Err: err}
	}
	pixels := make([]argb.Color, g.Len())
	for i := range pixels {
		c := g.At(i)
		if c.IsTransparent() {
			continue
		}
		pixels[i] = c
		s.discover(c)
	}
	s.basePixels = pixels
	s.dims = Dimensions{Width: g.Width, Height: g.Height}
	s.ensureReference()
	return nil
}

// DerivePalette compares g against the base image and stores the resulting
// map under the file's base name. Conflicting pixels are skipped and
// reported once per (base, target) pair.
func (s *State) DerivePalette(file string, g imaging.Grid) (*palette.Map, error) {
	name := palette.NameFromFile(file)
	if err := g.Validate(); err != nil {
		return nil, &imaging.DecodeError{Name: file, Err: err}
	}
	got := Dimensions{Width: g.Width, Height: g.Height}
	if s.basePixels == nil || got != s.dims {
		return nil, &DimensionMismatchError{Name: name, Expected: s.dims, Got: got}
	}
	m := palette.NewMap("", name)
	conflicts := newConflictLog()
	for i := 0; i < g.Len(); i++ {
		dst := g.At(i)
		if dst.IsTransparent() {
			continue
		}
		x, y := i%g.Width, i/g.Width
		src := s.basePixels[i]
		if _, known := s.colors[src]; src == argb.Transparent || !known {
			conflicts.add(Warning{Kind: ConflictUnmapped, Source: name, X: x, Y: y, Target: dst})
			continue
		}
		if prev, conflict := m.Put(src, dst); conflict {
			conflicts.add(Warning{Kind: ConflictContradiction, Source: name, X: x, Y: y, Base: src, Target: dst, Previous: prev})
		}
	}
	stored, err := s.InsertPalette(m)
	if err != nil {
		return nil, err
	}
	s.warnings = append(s.warnings, conflicts.warnings...)
	return s.palettes[stored].Clone(), nil
}

// InsertPalette stores a copy of m under a name no other map uses and
// returns that name. A taken name gets a " (copy)", " (copy 2)", ...
// suffix. Every source colour must already be in the colour table.
func (s *State) InsertPalette(m *palette.Map) (string, error) {
	if m == nil {
		return "", integrityf("nil palette map")
	}
	for _, src := range m.Sources() {
		if _, ok := s.colors[src]; !ok {
			return "", integrityf("palette %q references unknown colour %s", m.Name, argb.FormatHex(src))
		}
	}
	stored := m.Clone()
	stored.IsReference = false
	stored.Name = s.uniqueName(stored.Name)
	if stored.ID == "" || s.mapIDTaken(stored.ID) {
		stored.ID = s.mapID(stored.Name)
	}
	s.palettes[stored.Name] = stored
	s.paletteOrder = append(s.paletteOrder, stored.Name)
	return stored.Name, nil
}

func (s *State) nameTaken(name string) bool {
	if _, ok := s.palettes[name]; ok {
		return true
	}
	return s.reference != nil && s.reference.Name == name
}

func (s *State) uniqueName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = untitledPalette
	}
	if !s.nameTaken(name) {
		return name
	}
	candidate := name + " (copy)"
	for n := 2; s.nameTaken(candidate); n++ {
		candidate = fmt.Sprintf("%s (copy %d)", name, n)
	}
	return candidate
}

// discover adds a record for c unless the table already knows it.
func (s *State) discover(c argb.Color) {
	if _, ok := s.colors[c]; ok {
		return
	}
	s.addRecord(palette.Record{Color: c, Name: s.namer(c)})
}

// addRecord appends rec to the table. A missing or already-used identifier
// is replaced; an existing colour value is never re-identified.
func (s *State) addRecord(rec palette.Record) {
	if _, ok := s.colors[rec.Color]; ok {
		return
	}
	if rec.ID == "" {
		rec.ID = s.ids.ColorID(rec.Color)
	}
	if _, taken := s.idIndex[rec.ID]; taken {
		rec.ID = s.ids.ColorID(rec.Color)
		if _, stillTaken := s.idIndex[rec.ID]; stillTaken {
			rec.ID = palette.NewID()
		}
	}
	stored := rec.Clone()
	s.colors[rec.Color] = &stored
	s.colorOrder = append(s.colorOrder, rec.Color)
	s.idIndex[rec.ID] = rec.Color
}

func (s *State) mapID(name string) string {
	id := s.ids.MapID(name)
	if s.mapIDTaken(id) {
		return palette.NewID()
	}
	return id
}

func (s *State) mapIDTaken(id string) bool {
	if s.reference != nil && s.reference.ID == id {
		return true
	}
	for _, m := range s.palettes {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *State) ensureReference() {
	if s.reference != nil || len(s.colorOrder) == 0 {
		return
	}
	if len(s.paletteOrder) > 0 {
		s.promote(s.paletteOrder[0])
		return
	}
	name := s.uniqueName(s.referenceName)
	ref := palette.NewMap(s.mapID(name), name)
	ref.IsReference = true
	s.reference = ref
}

// promote turns an existing palette into the reference map.
func (s *State) promote(name string) {
	m, ok := s.palettes[name]
	if !ok {
		return
	}
	delete(s.palettes, name)
	for i, n := range s.paletteOrder {
		if n == name {
			s.paletteOrder = append(s.paletteOrder[:i:i], s.paletteOrder[i+1:]...)
			break
		}
	}
	m.IsReference = true
	s.reference = m
}

// checkIntegrity verifies every map only references known colours and
// every record is indexed by its identifier.
func (s *State) checkIntegrity() error {
	if len(s.colors) != len(s.colorOrder) || len(s.idIndex) != len(s.colorOrder) {
		return integrityf("colour table index out of sync")
	}
	for id, c := range s.idIndex {
		rec, ok := s.colors[c]
		if !ok || rec.ID != id {
			return integrityf("identifier %s does not resolve to %s", id, argb.FormatHex(c))
		}
	}
	maps := s.Palettes()
	if s.reference != nil {
		maps = append(maps, s.reference)
	}
	for _, m := range maps {
		for _, src := range m.Sources() {
			if _, ok := s.colors[src]; !ok {
				return integrityf("palette %q references unknown colour %s", m.Name, argb.FormatHex(src))
			}
		}
	}
	return nil
}

func (s *State) clone() *State {
	out := &State{
		ids:           s.ids,
		namer:         s.namer,
		referenceName: s.referenceName,
		colors:        make(map[argb.Color]*palette.Record, len(s.colors)),
		colorOrder:    append([]argb.Color(nil), s.colorOrder...),
		idIndex:       make(map[string]argb.Color, len(s.idIndex)),
		palettes:      make(map[string]*palette.Map, len(s.palettes)),
		paletteOrder:  append([]string(nil), s.paletteOrder...),
		reference:     s.reference.Clone(),
		dims:          s.dims,
		basePixels:    s.basePixels,
		header:        s.header.Clone(),
		warnings:      append([]Warning(nil), s.warnings...),
	}
	for c, rec := range s.colors {
		copied := rec.Clone()
		out.colors[c] = &copied
	}
	for id, c := range s.idIndex {
		out.idIndex[id] = c
	}
	for name, m := range s.palettes {
		out.palettes[name] = m.Clone()
	}
	return out
}
