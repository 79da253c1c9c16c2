package document

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kingrea/spritepal/internal/argb"
	"github.com/kingrea/spritepal/internal/engine"
	"github.com/kingrea/spritepal/internal/imaging"
)

var (
	red  = argb.Pack(255, 0, 0, 255)
	blue = argb.Pack(0, 0, 255, 255)
)

func sampleState(t *testing.T) *engine.State {
	t.Helper()
	s := engine.New()
	base := imaging.NewGrid(2, 1)
	base.Set(0, 0, red)
	base.Set(1, 0, blue)
	if err := s.DeriveBase("base.png", base); err != nil {
		t.Fatalf("DeriveBase: %v", err)
	}
	cold := imaging.NewGrid(2, 1)
	cold.Set(0, 0, blue)
	cold.Set(1, 0, blue)
	if _, err := s.DerivePalette("Cold.png", cold); err != nil {
		t.Fatalf("DerivePalette: %v", err)
	}
	return s
}

func fixedGUID() string { return "00000000-0000-0000-0000-000000000001" }

func TestRenderWritesEditorLayout(t *testing.T) {
	codec := NewCodec(WithGUID(fixedGUID))
	data, err := codec.Render(sampleState(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := string(data)
	order := []string{`"export"`, `"guid"`, `"colors"`, `"maps"`, `"imageAsset"`, `"id"`, `"pluginMetadata"`, `"plugins"`, `"tags"`, `"version"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, "\n  "+key)
		if idx < 0 || idx < last {
			t.Fatalf("key %s missing or out of order:\n%s", key, text)
		}
		last = idx
	}
	if !strings.Contains(text, `"color": "0xFFFF0000"`) {
		t.Fatalf("expected upper-case hex colour:\n%s", text)
	}

	var raw struct {
		GUID string `json:"guid"`
		Maps []struct {
			Name           string                     `json:"name"`
			PluginMetadata map[string]map[string]bool `json:"pluginMetadata"`
			Colors         []MapColor                 `json:"colors"`
		} `json:"maps"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal rendered: %v", err)
	}
	if raw.GUID != fixedGUID() {
		t.Fatalf("guid = %q", raw.GUID)
	}
	if len(raw.Maps) != 2 || raw.Maps[0].Name != "Base" || raw.Maps[1].Name != "Cold" {
		t.Fatalf("unexpected maps: %+v", raw.Maps)
	}
	if !raw.Maps[0].PluginMetadata[DefaultPlugin]["isBase"] || raw.Maps[1].PluginMetadata[DefaultPlugin]["isBase"] {
		t.Fatalf("isBase flags wrong: %+v", raw.Maps)
	}
	if len(raw.Maps[1].Colors) != 2 || raw.Maps[1].Colors[0].TargetColor != "0xFF0000FF" {
		t.Fatalf("unexpected Cold entries: %+v", raw.Maps[1].Colors)
	}
}

func TestRoundTripAsBaseDocument(t *testing.T) {
	codec := NewCodec()
	src := sampleState(t)
	data, err := codec.Render(src)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	frag, err := codec.Parse("costumes.palettes", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dst := engine.New()
	if err := dst.MergeDocument(frag, true); err != nil {
		t.Fatalf("MergeDocument: %v", err)
	}
	want, got := src.Colors(), dst.Colors()
	if len(want) != len(got) {
		t.Fatalf("colour count %d != %d", len(got), len(want))
	}
	for i := range want {
		if want[i].Color != got[i].Color || want[i].ID != got[i].ID {
			t.Fatalf("colour %d differs", i)
		}
	}
	cold, ok := dst.Palette("Cold")
	if !ok {
		t.Fatalf("Cold missing after round trip")
	}
	wantCold, _ := src.Palette("Cold")
	if !cold.SameEntries(wantCold) {
		t.Fatalf("Cold entries differ: %v vs %v", cold.Entries(), wantCold.Entries())
	}
	if dst.Reference() == nil || dst.Reference().Name != "Base" {
		t.Fatalf("reference not restored")
	}

	again, err := codec.Render(dst)
	if err != nil {
		t.Fatalf("Render again: %v", err)
	}
	if string(again) != string(data) {
		t.Fatalf("second render differs:\n%s\n---\n%s", again, data)
	}
}

func TestParseRejectsUnknownPaletteColorID(t *testing.T) {
	data := []byte(`{
  "colors": [{"$id": "a", "color": "0xFFFF0000", "name": "Red"}],
  "maps": [{"$id": "m", "name": "Bad", "colors": [{"paletteColorId": "zzz", "targetColor": "0xFF0000FF"}]}]
}`)
	_, err := NewCodec().Parse("bad.palettes", data)
	var schemaErr *engine.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if !strings.Contains(schemaErr.Reason, "zzz") {
		t.Fatalf("reason should name the id: %q", schemaErr.Reason)
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	codec := NewCodec()
	for _, input := range []string{`not json`, `[1,2]`, `{"colors": [{"$id": "a", "color": "purple"}]}`} {
		_, err := codec.Parse("x.palettes", []byte(input))
		var schemaErr *engine.SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("input %q: expected SchemaError, got %v", input, err)
		}
	}
}

func TestParseDetectsBaseFlagFromAnyPlugin(t *testing.T) {
	data := []byte(`{
  "colors": [{"$id": "a", "color": "0xFFFF0000", "name": "Red", "pluginMetadata": {"x": {"swatch": 3}}}],
  "maps": [
    {"$id": "m1", "name": "Alt", "colors": [], "pluginMetadata": {"other.Plugin": {"isBase": false}}},
    {"$id": "m2", "name": "Identity", "colors": [{"paletteColorId": "a", "targetColor": "0xFFFF0000"}], "pluginMetadata": {"other.Plugin": {"isBase": true}}}
  ]
}`)
	frag, err := NewCodec().Parse("legacy.palettes", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frag.Maps[0].IsReference || !frag.Maps[1].IsReference {
		t.Fatalf("unexpected flags: %+v", frag.Maps)
	}
	if string(frag.Colors[0].Metadata["x"]) != `{"swatch": 3}` {
		t.Fatalf("colour metadata not kept verbatim: %s", frag.Colors[0].Metadata["x"])
	}
}

func TestHeaderTemplateSurvivesBaseImport(t *testing.T) {
	data := []byte(`{"export": false, "guid": "keep-me", "tags": ["hero"], "custom": {"a": 1}, "colors": [], "maps": []}`)
	codec := NewCodec(WithIndent(0))
	frag, err := codec.Parse("hero.palettes", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := engine.New()
	if err := s.MergeDocument(frag, true); err != nil {
		t.Fatalf("MergeDocument: %v", err)
	}
	out, err := codec.Render(s)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := string(out)
	for _, want := range []string{`"export":false`, `"guid":"keep-me"`, `"tags":["hero"]`, `"custom":{"a":1}`, `"version":1`} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %s in %s", want, text)
		}
	}
	if !strings.HasSuffix(text, `"custom":{"a":1}}`) {
		t.Fatalf("extra header keys should follow the known ones: %s", text)
	}
}

func TestMapMetadataKeepsOtherFields(t *testing.T) {
	data := []byte(`{
  "colors": [{"$id": "a", "color": "0xFFFF0000", "name": "Red"}],
  "maps": [
    {"$id": "b", "name": "Base", "colors": [], "pluginMetadata": {"com.fraymakers.FraymakersMetadata": {"isBase": true}}},
    {"$id": "c", "name": "Night", "colors": [{"paletteColorId": "a", "targetColor": "0xFF000000"}], "pluginMetadata": {"com.fraymakers.FraymakersMetadata": {"isBase": false, "order": 4}}}
  ]
}`)
	codec := NewCodec(WithIndent(0))
	frag, err := codec.Parse("night.palettes", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := engine.New()
	if err := s.MergeDocument(frag, false); err != nil {
		t.Fatalf("MergeDocument: %v", err)
	}
	out, err := codec.Render(s)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), `{"com.fraymakers.FraymakersMetadata":{"isBase":false,"order":4}}`) {
		t.Fatalf("map metadata lost: %s", out)
	}
}
