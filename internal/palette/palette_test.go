package palette

import (
	"testing"

	"github.com/kingrea/spritepal/internal/argb"
)

var (
	red   = argb.Pack(255, 0, 0, 255)
	green = argb.Pack(0, 255, 0, 255)
	blue  = argb.Pack(0, 0, 255, 255)
)

func TestMapPutKeepsFirstTarget(t *testing.T) {
	m := NewMap("id", "Cold")
	if _, conflict := m.Put(red, blue); conflict {
		t.Fatalf("first put must not conflict")
	}
	if _, conflict := m.Put(red, blue); conflict {
		t.Fatalf("repeating the same mapping must not conflict")
	}
	prev, conflict := m.Put(red, green)
	if !conflict || prev != blue {
		t.Fatalf("Put(red, green) = %s, %v; want blue conflict", prev, conflict)
	}
	if dst, _ := m.Target(red); dst != blue {
		t.Fatalf("earlier mapping must win, got %s", dst)
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d, want 1", m.Len())
	}
}

func TestMapSourcesPreserveOrder(t *testing.T) {
	m := NewMap("id", "Warm")
	m.Put(blue, red)
	m.Put(red, red)
	m.Put(green, red)
	got := m.Sources()
	want := []argb.Color{blue, red, green}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sources[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMapCloneIsIndependent(t *testing.T) {
	m := NewMap("id", "Warm")
	m.Put(red, blue)
	clone := m.Clone()
	clone.Put(green, green)
	if m.Len() != 1 {
		t.Fatalf("clone mutated original")
	}
	if !m.SameEntries(m.Clone()) {
		t.Fatalf("fresh clone must hold the same entries")
	}
	if m.SameEntries(clone) {
		t.Fatalf("diverged clone must differ")
	}
}

func TestNameFromFileStripsFinalExtension(t *testing.T) {
	cases := map[string]string{
		"Cold.png":           "Cold",
		"sprites/Warm.gif":   "Warm",
		"alt.v2.png":         "alt.v2",
		"noext":              "noext",
		".hidden":            ".hidden",
		"  padded name.png ": "padded name",
	}
	for in, want := range cases {
		if got := NameFromFile(in); got != want {
			t.Fatalf("NameFromFile(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNearestName(t *testing.T) {
	if got := NearestName(argb.Pack(250, 5, 5, 255)); got != "Red" {
		t.Fatalf("NearestName(near red) = %s", got)
	}
	if got := NearestName(argb.Pack(0, 0, 0, 10)); got != "Black" {
		t.Fatalf("NearestName ignores alpha, got %s", got)
	}
	if got := PlaceholderNamer("")(red); got != DefaultColorName {
		t.Fatalf("placeholder = %s", got)
	}
}
