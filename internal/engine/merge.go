package engine

import (
	"fmt"

	"github.com/kingrea/spritepal/internal/argb"
	"github.com/kingrea/spritepal/internal/palette"
)

// Fragment is the engine-side view of a parsed palette document.
type Fragment struct {
	// Name identifies the document in errors and warnings.
	Name string
	// Header carries every document-level field other than colors and maps.
	Header palette.Metadata
	Colors []palette.Record
	Maps   []FragmentMap
}

// FragmentMap is one palette map whose entries still reference colours by id.
type FragmentMap struct {
	ID          string
	Name        string
	IsReference bool
	Metadata    palette.Metadata
	Entries     []FragmentEntry
}

// FragmentEntry maps the colour with ColorID to Target.
type FragmentEntry struct {
	ColorID string
	Target  argb.Color
}

// MergeDocument folds a parsed document into the state. The merge is
// all-or-nothing: a SchemaError leaves the state exactly as it was.
//
// A regular import never re-identifies a known colour and adds its maps
// under collision-safe names. A base import (asBase) lets the document's
// colours and maps take precedence, then re-adds everything held before so
// nothing is lost. Only a base import replaces the document header.
func (s *State) MergeDocument(frag Fragment, asBase bool) error {
	next := s.clone()
	if err := next.merge(frag, asBase); err != nil {
		return err
	}
	if err := next.checkIntegrity(); err != nil {
		return err
	}
	*s = *next
	return nil
}

type resolvedMap struct {
	m         *palette.Map
	reference bool
}

func (s *State) merge(frag Fragment, asBase bool) error {
	incoming, err := indexColors(frag)
	if err != nil {
		return err
	}
	var warnings []Warning
	maps := make([]resolvedMap, 0, len(frag.Maps))
	for i, fm := range frag.Maps {
		conflicts := newConflictLog()
		m, err := s.resolveMap(frag.Name, i, fm, incoming, conflicts)
		if err != nil {
			return err
		}
		maps = append(maps, resolvedMap{m: m, reference: fm.IsReference})
		warnings = append(warnings, conflicts.warnings...)
	}

	if asBase {
		err = s.mergeBase(frag, maps)
	} else {
		err = s.mergeRegular(frag, maps)
	}
	if err != nil {
		return err
	}
	// With no flagged map the first palette is promoted to the reference role.
	s.ensureReference()
	s.warnings = append(s.warnings, warnings...)
	return nil
}

func (s *State) mergeRegular(frag Fragment, maps []resolvedMap) error {
	for _, rec := range frag.Colors {
		if rec.Color.IsTransparent() {
			continue
		}
		if _, known := s.colors[rec.Color]; known {
			continue
		}
		s.addRecord(rec)
	}
	for _, rm := range maps {
		if rm.reference && s.reference == nil {
			s.adoptReference(rm.m)
			continue
		}
		if rm.reference {
			// The identity map is rebuilt from the colour table on render.
			continue
		}
		if _, err := s.InsertPalette(rm.m); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) mergeBase(frag Fragment, maps []resolvedMap) error {
	oldColors := s.Colors()
	oldPalettes := s.Palettes()
	oldReference := s.reference

	s.colors = map[argb.Color]*palette.Record{}
	s.colorOrder = nil
	s.idIndex = map[string]argb.Color{}
	for _, rec := range frag.Colors {
		if rec.Color.IsTransparent() {
			continue
		}
		s.addRecord(rec)
	}
	for _, rec := range oldColors {
		s.addRecord(rec)
	}

	if frag.Header != nil {
		s.header = frag.Header.Clone()
	}

	s.palettes = map[string]*palette.Map{}
	s.paletteOrder = nil
	s.reference = nil
	if len(maps) == 0 {
		s.reference = oldReference
	}
	for _, rm := range maps {
		if rm.reference && s.reference == nil {
			s.adoptReference(rm.m)
			continue
		}
		if _, err := s.InsertPalette(rm.m); err != nil {
			return err
		}
	}
	// A promoted user map held the reference role; keep it as a palette.
	if len(maps) > 0 && oldReference != nil && !isIdentity(oldReference) {
		if _, err := s.InsertPalette(oldReference); err != nil {
			return err
		}
	}
	for _, m := range oldPalettes {
		if _, err := s.InsertPalette(m); err != nil {
			return err
		}
	}
	return nil
}

// isIdentity reports whether every entry of m maps a colour to itself.
func isIdentity(m *palette.Map) bool {
	for _, src := range m.Sources() {
		if dst, _ := m.Target(src); dst != src {
			return false
		}
	}
	return true
}

func (s *State) adoptReference(m *palette.Map) {
	ref := m.Clone()
	ref.IsReference = true
	ref.Name = s.uniqueName(ref.Name)
	if ref.ID == "" || s.mapIDTaken(ref.ID) {
		ref.ID = s.mapID(ref.Name)
	}
	s.reference = ref
}

// indexColors maps every incoming colour id to its value.
func indexColors(frag Fragment) (map[string]argb.Color, error) {
	out := make(map[string]argb.Color, len(frag.Colors))
	for i, rec := range frag.Colors {
		if rec.ID == "" {
			return nil, &SchemaError{Name: frag.Name, Reason: fmt.Sprintf("colors[%d] has no $id", i)}
		}
		if prev, dup := out[rec.ID]; dup && prev != rec.Color {
			return nil, &SchemaError{Name: frag.Name, Reason: fmt.Sprintf("colors[%d] reuses $id %q for %s (already %s)", i, rec.ID, argb.FormatHex(rec.Color), argb.FormatHex(prev))}
		}
		out[rec.ID] = rec.Color
	}
	return out, nil
}

// resolveMap turns id-keyed entries into colour-keyed ones. Ids resolve
// against the incoming document first, then against the current table.
func (s *State) resolveMap(doc string, index int, fm FragmentMap, incoming map[string]argb.Color, conflicts *conflictLog) (*palette.Map, error) {
	m := palette.NewMap(fm.ID, fm.Name)
	m.Metadata = fm.Metadata.Clone()
	for j, entry := range fm.Entries {
		src, ok := incoming[entry.ColorID]
		if !ok {
			src, ok = s.idIndex[entry.ColorID]
		}
		if !ok {
			return nil, &SchemaError{
				Name:   doc,
				Reason: fmt.Sprintf("maps[%d] %q colors[%d] references unknown paletteColorId %q", index, fm.Name, j, entry.ColorID),
			}
		}
		if src.IsTransparent() {
			conflicts.add(Warning{Kind: ConflictUnmapped, Source: doc, Map: fm.Name, X: -1, Y: -1, Target: entry.Target})
			continue
		}
		if prev, conflict := m.Put(src, entry.Target); conflict {
			conflicts.add(Warning{Kind: ConflictContradiction, Source: doc, Map: fm.Name, X: -1, Y: -1, Base: src, Target: entry.Target, Previous: prev})
		}
	}
	return m, nil
}
