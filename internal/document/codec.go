package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kingrea/spritepal/internal/argb"
	"github.com/kingrea/spritepal/internal/engine"
	"github.com/kingrea/spritepal/internal/palette"
)

const (
	// DefaultPlugin owns the isBase flag on palette maps.
	DefaultPlugin        = "com.fraymakers.FraymakersMetadata"
	DefaultPluginVersion = "0.1.2"
	DefaultIndent        = 2
	// FormatVersion is written to the version field of new documents.
	FormatVersion = 1
)

// Codec converts between documents and engine state.
type Codec struct {
	plugin        string
	pluginVersion string
	indent        int
	newGUID       func() string
}

// Option configures a Codec.
type Option func(*Codec)

// WithPlugin sets the metadata plugin written into new documents.
func WithPlugin(name, version string) Option {
	return func(c *Codec) {
		if strings.TrimSpace(name) != "" {
			c.plugin = strings.TrimSpace(name)
		}
		if strings.TrimSpace(version) != "" {
			c.pluginVersion = strings.TrimSpace(version)
		}
	}
}

// WithIndent sets the number of spaces per indent level. Zero writes
// compact JSON.
func WithIndent(spaces int) Option {
	return func(c *Codec) {
		if spaces >= 0 {
			c.indent = spaces
		}
	}
}

// WithGUID overrides how a fresh document guid is generated.
func WithGUID(fn func() string) Option {
	return func(c *Codec) {
		if fn != nil {
			c.newGUID = fn
		}
	}
}

// NewCodec builds a codec with the editor defaults.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		plugin:        DefaultPlugin,
		pluginVersion: DefaultPluginVersion,
		indent:        DefaultIndent,
		newGUID:       palette.NewID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Plugin returns the metadata plugin name.
func (c *Codec) Plugin() string {
	return c.plugin
}

// Decode parses raw JSON into a Document without checking references.
func Decode(name string, data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &engine.SchemaError{Name: name, Reason: "not a palette document", Err: err}
	}
	return &doc, nil
}

// Parse decodes and validates a document and converts it into an engine
// fragment ready for merging.
func (c *Codec) Parse(name string, data []byte) (engine.Fragment, error) {
	doc, err := Decode(name, data)
	if err != nil {
		return engine.Fragment{}, err
	}
	return c.ToFragment(name, doc)
}

// ToFragment validates doc and converts colour strings and map flags. Every
// paletteColorId must resolve to an entry of the document's colors array.
func (c *Codec) ToFragment(name string, doc *Document) (engine.Fragment, error) {
	schemaErr := func(err error, format string, args ...any) error {
		return &engine.SchemaError{Name: name, Reason: fmt.Sprintf(format, args...), Err: err}
	}
	frag := engine.Fragment{Name: name, Header: doc.Header.Clone()}
	ids := make(map[string]bool, len(doc.Colors))
	for i, entry := range doc.Colors {
		if entry.ID == "" {
			return engine.Fragment{}, schemaErr(nil, "colors[%d] has no $id", i)
		}
		value, err := argb.ParseHex(entry.Color)
		if err != nil {
			return engine.Fragment{}, schemaErr(err, "colors[%d] color", i)
		}
		meta, err := objectFields(entry.PluginMetadata)
		if err != nil {
			return engine.Fragment{}, schemaErr(err, "colors[%d] pluginMetadata", i)
		}
		ids[entry.ID] = true
		frag.Colors = append(frag.Colors, palette.Record{
			ID:       entry.ID,
			Color:    value,
			Name:     entry.Name,
			Metadata: meta,
		})
	}
	for i, entry := range doc.Maps {
		meta, err := objectFields(entry.PluginMetadata)
		if err != nil {
			return engine.Fragment{}, schemaErr(err, "maps[%d] pluginMetadata", i)
		}
		fm := engine.FragmentMap{
			ID:          entry.ID,
			Name:        entry.Name,
			IsReference: c.isBase(meta),
			Metadata:    meta,
		}
		for j, mc := range entry.Colors {
			if !ids[mc.PaletteColorID] {
				return engine.Fragment{}, schemaErr(nil, "maps[%d] %q colors[%d] references unknown paletteColorId %q", i, entry.Name, j, mc.PaletteColorID)
			}
			target, err := argb.ParseHex(mc.TargetColor)
			if err != nil {
				return engine.Fragment{}, schemaErr(err, "maps[%d] %q colors[%d] targetColor", i, entry.Name, j)
			}
			fm.Entries = append(fm.Entries, engine.FragmentEntry{ColorID: mc.PaletteColorID, Target: target})
		}
		frag.Maps = append(frag.Maps, fm)
	}
	return frag, nil
}

// isBase reads the isBase flag, preferring the configured plugin's metadata.
func (c *Codec) isBase(meta palette.Metadata) bool {
	if flag, ok := baseFlag(meta[c.plugin]); ok {
		return flag
	}
	for key, raw := range meta {
		if key == c.plugin {
			continue
		}
		if flag, ok := baseFlag(raw); ok && flag {
			return true
		}
	}
	return false
}

func baseFlag(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var probe struct {
		IsBase *bool `json:"isBase"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.IsBase == nil {
		return false, false
	}
	return *probe.IsBase, true
}

func objectFields(raw json.RawMessage) (palette.Metadata, error) {
	if isNull(raw) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("must be an object: %w", err)
	}
	return palette.Metadata(fields), nil
}

// FromState builds the document for s. The reference map comes first with
// isBase true; the remaining maps follow in insertion order with isBase
// false. Header fields missing from the retained template are filled with
// editor defaults.
func (c *Codec) FromState(s *engine.State) (*Document, error) {
	header, err := c.header(s.Header())
	if err != nil {
		return nil, err
	}
	doc := &Document{Header: header}
	ids := map[argb.Color]string{}
	for _, rec := range s.Colors() {
		name := rec.Name
		if name == "" {
			name = palette.DefaultColorName
		}
		meta, err := marshalObject(rec.Metadata)
		if err != nil {
			return nil, err
		}
		doc.Colors = append(doc.Colors, ColorEntry{
			ID:             rec.ID,
			Color:          argb.FormatHex(rec.Color),
			Name:           name,
			PluginMetadata: meta,
		})
		ids[rec.Color] = rec.ID
	}
	maps := s.Palettes()
	if ref := s.Reference(); ref != nil {
		maps = append([]*palette.Map{ref}, maps...)
	}
	for _, m := range maps {
		meta, err := c.mapMetadata(m.Metadata, m.IsReference)
		if err != nil {
			return nil, err
		}
		entry := MapEntry{ID: m.ID, Name: m.Name, PluginMetadata: meta, Colors: []MapColor{}}
		for _, src := range m.Sources() {
			id, ok := ids[src]
			if !ok {
				return nil, fmt.Errorf("%w: map %q references %s outside the colour table", engine.ErrIntegrity, m.Name, argb.FormatHex(src))
			}
			dst, _ := m.Target(src)
			entry.Colors = append(entry.Colors, MapColor{PaletteColorID: id, TargetColor: argb.FormatHex(dst)})
		}
		doc.Maps = append(doc.Maps, entry)
	}
	return doc, nil
}

// Render serializes s as an indented palette document.
func (c *Codec) Render(s *engine.State) ([]byte, error) {
	doc, err := c.FromState(s)
	if err != nil {
		return nil, err
	}
	return c.Marshal(doc)
}

// Marshal serializes doc with the codec's indentation.
func (c *Codec) Marshal(doc *Document) ([]byte, error) {
	compact, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document: marshal: %w", err)
	}
	if c.indent == 0 {
		return compact, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", strings.Repeat(" ", c.indent)); err != nil {
		return nil, fmt.Errorf("document: indent: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Codec) header(template palette.Metadata) (palette.Metadata, error) {
	out := template.Clone()
	if out == nil {
		out = palette.Metadata{}
	}
	defaults := map[string]any{
		"export":     true,
		"guid":       c.newGUID(),
		"imageAsset": "",
		"id":         "",
		"pluginMetadata": map[string]any{
			c.plugin: map[string]string{"version": c.pluginVersion},
		},
		"plugins": []string{c.plugin},
		"tags":    []string{},
		"version": FormatVersion,
	}
	for key, value := range defaults {
		if _, ok := out[key]; ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("document: header %s: %w", key, err)
		}
		out[key] = raw
	}
	return out, nil
}

// mapMetadata sets isBase inside the plugin's metadata object, keeping any
// other fields the map carried.
func (c *Codec) mapMetadata(meta palette.Metadata, isBase bool) (json.RawMessage, error) {
	out := meta.Clone()
	if out == nil {
		out = palette.Metadata{}
	}
	fields := map[string]json.RawMessage{}
	if raw, ok := out[c.plugin]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &fields); err != nil {
			fields = map[string]json.RawMessage{}
		}
	}
	flag, _ := json.Marshal(isBase)
	fields["isBase"] = flag
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("document: map metadata: %w", err)
	}
	out[c.plugin] = raw
	return marshalObject(out)
}

func marshalObject(meta palette.Metadata) (json.RawMessage, error) {
	if meta == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(map[string]json.RawMessage(meta))
	if err != nil {
		return nil, fmt.Errorf("document: metadata: %w", err)
	}
	return raw, nil
}
