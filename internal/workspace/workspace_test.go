package workspace

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kingrea/spritepal/internal/document"
)

func pngBytes(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"a/Cold.PNG":        KindImage,
		"batch.zip":         KindArchive,
		"batch.7z":          KindArchive,
		"costumes.palettes": KindDocument,
		"exported.json":     KindDocument,
		"sprites/hero.webp": KindImage,
		"sprites/hero.gif":  KindImage,
		"sprites/hero.bmp":  KindImage,
		"sprites/hero.jpeg": KindImage,
		"sprites/hero.tiff": KindImage,
	}
	for path, want := range cases {
		got, err := Classify(path)
		if err != nil || got != want {
			t.Fatalf("Classify(%q) = %q, %v; want %q", path, got, err, want)
		}
	}
	if _, err := Classify("notes.txt"); err == nil {
		t.Fatalf("expected error for unsupported file")
	}
}

func TestLoadKeepsOrderAndExpandsArchives(t *testing.T) {
	dir := t.TempDir()
	red := pngBytes(t, color.NRGBA{R: 255, A: 255})
	blue := pngBytes(t, color.NRGBA{B: 255, A: 255})

	var zipped bytes.Buffer
	zw := zip.NewWriter(&zipped)
	for _, name := range []string{"Zeta.png", "Alpha.png", "readme.txt"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(blue); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	docData, err := document.NewCodec().Marshal(&document.Document{
		Colors: []document.ColorEntry{{ID: "r", Color: "0xFFFF0000", Name: "Red"}},
	})
	if err != nil {
		t.Fatalf("marshal doc: %v", err)
	}

	paths := []string{
		writeFile(t, dir, "Cold.png", red),
		writeFile(t, dir, "batch.zip", zipped.Bytes()),
		writeFile(t, dir, "broken.png", []byte("nope")),
		writeFile(t, dir, "old.palettes", docData),
		writeFile(t, dir, "notes.txt", []byte("hi")),
	}
	loaded, err := NewLoader(nil, 2).Load(context.Background(), paths)
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("expected two aggregated errors, got %v", err)
	}
	names := []string{}
	for _, img := range loaded.Images {
		names = append(names, img.Name)
	}
	want := []string{"Cold.png", "Alpha.png", "Zeta.png"}
	if len(names) != len(want) {
		t.Fatalf("images = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("images = %v, want %v", names, want)
		}
	}
	if len(loaded.ImagePaths) != 3 || loaded.ImagePaths[0] != paths[0] || loaded.ImagePaths[2] != paths[1] {
		t.Fatalf("unexpected image paths %v", loaded.ImagePaths)
	}
	if len(loaded.Documents) != 1 || loaded.Documents[0].Name != "old.palettes" {
		t.Fatalf("unexpected documents %+v", loaded.Documents)
	}
}

func TestManifestRoundTripAndChangeDetection(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.png", pngBytes(t, color.NRGBA{R: 255, A: 255}))
	cold := writeFile(t, dir, "Cold.png", pngBytes(t, color.NRGBA{B: 255, A: 255}))
	baseRec, err := Record(base)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	coldRec, err := Record(cold)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	repo := NewRepository(filepath.Join(dir, "state"), WithClock(func() time.Time { return fixed }))
	if _, err := repo.Load(); !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
	if err := repo.Save(Manifest{BaseImage: &baseRec, Images: []InputRecord{coldRec}, Output: "out.palettes"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.UpdatedAt.Equal(fixed) || loaded.BaseImage.Path != baseRec.Path || len(loaded.Images) != 1 {
		t.Fatalf("unexpected manifest %+v", loaded)
	}
	if paths := loaded.Paths(); len(paths) != 2 || paths[0] != baseRec.Path {
		t.Fatalf("unexpected paths %v", paths)
	}
	if changed := loaded.Changed(); len(changed) != 0 {
		t.Fatalf("nothing changed yet, got %v", changed)
	}
	writeFile(t, dir, "Cold.png", pngBytes(t, color.NRGBA{G: 255, A: 255}))
	if changed := loaded.Changed(); len(changed) != 1 || changed[0] != coldRec.Path {
		t.Fatalf("expected Cold.png to be reported, got %v", changed)
	}
}

func TestFingerprintIsStable(t *testing.T) {
	if Fingerprint([]byte("abc")) != Fingerprint([]byte("abc")) {
		t.Fatalf("fingerprint not deterministic")
	}
	if Fingerprint([]byte("abc")) == Fingerprint([]byte("abd")) {
		t.Fatalf("fingerprint collision on tiny inputs")
	}
	if len(Fingerprint(nil)) != 16 {
		t.Fatalf("fingerprint should be 16 hex digits")
	}
}

func TestWriteDocumentCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "costumes.palettes")
	if err := WriteDocument(path, []byte(`{"export": true}`)); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != `{"export": true}` {
		t.Fatalf("unexpected file contents %q, %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
	if err := WriteDocument(path, nil); err == nil {
		t.Fatalf("expected error for empty document")
	}
}
