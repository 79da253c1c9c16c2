// Package document reads and writes the palette document exchanged with the
// game editor (a `.palettes` JSON file).
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kingrea/spritepal/internal/palette"
)

// Top-level keys in the order the editor writes them.
var headerOrder = []string{
	"export",
	"guid",
	"colors",
	"maps",
	"imageAsset",
	"id",
	"pluginMetadata",
	"plugins",
	"tags",
	"version",
}

// Document is one palette document. Header holds every top-level field
// other than colors and maps, verbatim.
type Document struct {
	Header palette.Metadata
	Colors []ColorEntry
	Maps   []MapEntry
}

// ColorEntry is one element of the top-level colors array.
type ColorEntry struct {
	ID             string          `json:"$id"`
	Color          string          `json:"color"`
	Name           string          `json:"name"`
	PluginMetadata json.RawMessage `json:"pluginMetadata,omitempty"`
}

// MapEntry is one element of the top-level maps array.
type MapEntry struct {
	ID             string          `json:"$id"`
	Colors         []MapColor      `json:"colors"`
	Name           string          `json:"name"`
	PluginMetadata json.RawMessage `json:"pluginMetadata,omitempty"`
}

// MapColor substitutes TargetColor for the colour with PaletteColorID.
type MapColor struct {
	PaletteColorID string `json:"paletteColorId"`
	TargetColor    string `json:"targetColor"`
}

// UnmarshalJSON splits colors and maps from the rest of the document.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("document is null")
	}
	out := Document{}
	if raw, ok := fields["colors"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.Colors); err != nil {
			return fmt.Errorf("colors: %w", err)
		}
	}
	if raw, ok := fields["maps"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.Maps); err != nil {
			return fmt.Errorf("maps: %w", err)
		}
	}
	delete(fields, "colors")
	delete(fields, "maps")
	if len(fields) > 0 {
		out.Header = palette.Metadata(fields)
	}
	*d = out
	return nil
}

// MarshalJSON writes the known keys in editor order, then any other header
// keys sorted by name.
func (d Document) MarshalJSON() ([]byte, error) {
	colors, err := json.Marshal(nonNil(d.Colors))
	if err != nil {
		return nil, err
	}
	maps, err := json.Marshal(nonNilMaps(d.Maps))
	if err != nil {
		return nil, err
	}
	values := d.Header.Clone()
	if values == nil {
		values = palette.Metadata{}
	}
	values["colors"] = colors
	values["maps"] = maps

	keys := make([]string, 0, len(values))
	known := map[string]bool{}
	for _, key := range headerOrder {
		known[key] = true
		if _, ok := values[key]; ok {
			keys = append(keys, key)
		}
	}
	var extra []string
	for key := range values {
		if !known[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func nonNil(colors []ColorEntry) []ColorEntry {
	if colors == nil {
		return []ColorEntry{}
	}
	return colors
}

func nonNilMaps(maps []MapEntry) []MapEntry {
	out := make([]MapEntry, len(maps))
	copy(out, maps)
	for i := range out {
		if out[i].Colors == nil {
			out[i].Colors = []MapColor{}
		}
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
