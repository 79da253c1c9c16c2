package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/spritepal/internal/config"
	"github.com/kingrea/spritepal/internal/document"
	"github.com/kingrea/spritepal/internal/logbook"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

func encodePNG(t *testing.T, w, h int, pixels ...color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, c := range pixels {
		img.SetNRGBA(i%w, i/w, c)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func startServer(t *testing.T, maxBody int64, opts ...Option) *Server {
	t.Helper()
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0, MaxBodyBytes: maxBody, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(settings, opts...)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return srv
}

func post(t *testing.T, url string, body []byte) (int, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("SPRITEPAL_SERVER_PORT", "9001")
	t.Setenv("SPRITEPAL_SERVER_HOST", "0.0.0.0")
	t.Setenv("SPRITEPAL_SERVER_ENABLED", "false")
	settings := SettingsFromConfig(&config.Config{})
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from env override")
	}
}

func TestSettingsFromConfigReadsServerSection(t *testing.T) {
	disabled := false
	cfg := &config.Config{Project: config.ProjectConfig{Server: config.ServerConfig{
		Enabled:      &disabled,
		Host:         " 10.0.0.2 ",
		Port:         9100,
		MaxBodyBytes: 2048,
	}}}
	settings := SettingsFromConfig(cfg)
	if settings.Enabled || settings.Host != "10.0.0.2" || settings.Port != 9100 || settings.MaxBodyBytes != 2048 {
		t.Fatalf("unexpected settings %+v", settings)
	}
	if settings.URL() != "http://10.0.0.2:9100" {
		t.Fatalf("unexpected url %s", settings.URL())
	}
	if err := NewServer(settings).Start(context.Background()); err == nil {
		t.Fatalf("expected disabled server to refuse to start")
	}
}

func TestServerBuildsDocumentFromUploads(t *testing.T) {
	t.Parallel()
	journal, err := logbook.New(filepath.Join(t.TempDir(), logbook.FileName))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	guid := func() string { return "00000000-0000-0000-0000-0000000000aa" }
	srv := startServer(t, 1<<20, WithLogbook(journal), WithCodec(document.NewCodec(document.WithGUID(guid))))
	base := srv.BaseURL()

	status, body := get(t, base+"/health")
	if status != http.StatusOK || !strings.Contains(string(body), `"ready"`) {
		t.Fatalf("unexpected health %d %s", status, body)
	}

	status, body = post(t, base+"/base/image?name=base.png", encodePNG(t, 2, 1, red, green))
	if status != http.StatusOK {
		t.Fatalf("base upload failed: %d %s", status, body)
	}
	var state stateResponse
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Colors != 2 || state.Dimensions != "2x1" || !state.HasBase {
		t.Fatalf("unexpected state after base %+v", state)
	}

	status, body = post(t, base+"/palettes/image?name=Cold.png", encodePNG(t, 2, 1, blue, white))
	if status != http.StatusOK {
		t.Fatalf("palette upload failed: %d %s", status, body)
	}

	resp, err := http.Get(base + "/document")
	if err != nil {
		t.Fatalf("GET /document: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("document status %d: %s", resp.StatusCode, data)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "costumes.palettes") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	doc, err := document.Decode("costumes.palettes", data)
	if err != nil {
		t.Fatalf("decode rendered document: %v", err)
	}
	if len(doc.Colors) != 2 || len(doc.Maps) != 2 {
		t.Fatalf("expected 2 colors and 2 maps, got %d and %d", len(doc.Colors), len(doc.Maps))
	}
	if doc.Maps[0].Name != "Base" || doc.Maps[1].Name != "Cold" {
		t.Fatalf("unexpected map order %q, %q", doc.Maps[0].Name, doc.Maps[1].Name)
	}
	if lines, total := journal.Tail(10); total < 2 || !strings.Contains(strings.Join(lines, "\n"), "accepted Cold.png") {
		t.Fatalf("journal missing accepted inputs: %v", lines)
	}
}

func TestServerReportsConflictsAndRejectsMismatchedImages(t *testing.T) {
	t.Parallel()
	srv := startServer(t, 1<<20)
	base := srv.BaseURL()

	if status, body := post(t, base+"/palettes/image?name=Early.png", encodePNG(t, 1, 1, red)); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without a base, got %d %s", status, body)
	}
	if status, body := post(t, base+"/base/image", encodePNG(t, 2, 1, red, red)); status != http.StatusOK {
		t.Fatalf("base upload failed: %d %s", status, body)
	}
	status, body := post(t, base+"/palettes/image?name=Tall.png", encodePNG(t, 2, 2, red, red, red, red))
	if status != http.StatusUnprocessableEntity || !strings.Contains(string(body), "Tall") {
		t.Fatalf("expected 422 dimension mismatch, got %d %s", status, body)
	}
	if status, body := post(t, base+"/palettes/image?name=Mixed.png", encodePNG(t, 2, 1, blue, green)); status != http.StatusOK {
		t.Fatalf("conflicting palette should still be accepted: %d %s", status, body)
	}

	_, body = get(t, base+"/warnings")
	var warnings warningsResponse
	if err := json.Unmarshal(body, &warnings); err != nil {
		t.Fatalf("decode warnings: %v", err)
	}
	if len(warnings.Warnings) != 1 || !strings.Contains(warnings.Warnings[0], `"Mixed"`) {
		t.Fatalf("expected one conflict for Mixed, got %v", warnings.Warnings)
	}
	_, body = get(t, base+"/warnings")
	if err := json.Unmarshal(body, &warnings); err != nil {
		t.Fatalf("decode warnings: %v", err)
	}
	if len(warnings.Warnings) != 0 {
		t.Fatalf("warnings should drain, got %v", warnings.Warnings)
	}
	if status, _ := post(t, base+"/palettes/image", encodePNG(t, 2, 1, red, red)); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", status)
	}
	if status, _ := post(t, base+"/palettes/document?name=x.palettes", []byte("not json")); status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed document, got %d", status)
	}
}

func TestServerEnforcesPayloadLimit(t *testing.T) {
	t.Parallel()
	srv := startServer(t, 16)
	status, _ := post(t, srv.BaseURL()+"/base/image", bytes.Repeat([]byte("x"), 64))
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", status)
	}
	resp, err := http.Get(srv.BaseURL() + "/base/image")
	if err != nil {
		t.Fatalf("GET /base/image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("expected 405 with Allow header, got %d %q", resp.StatusCode, resp.Header.Get("Allow"))
	}
}

func TestServerResetAndReapply(t *testing.T) {
	t.Parallel()
	srv := startServer(t, 1<<20)
	base := srv.BaseURL()
	post(t, base+"/base/image?name=small.png", encodePNG(t, 1, 1, red))
	post(t, base+"/palettes/image?name=Cold.png", encodePNG(t, 1, 1, blue))

	// Swapping to a larger base leaves Cold retained but no longer applicable.
	status, body := post(t, base+"/base/image?name=big.png", encodePNG(t, 2, 1, red, green))
	if status != http.StatusOK {
		t.Fatalf("base swap failed: %d %s", status, body)
	}
	var state stateResponse
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Errors) != 1 || len(state.Retained.Images) != 1 || len(state.Palettes) != 1 {
		t.Fatalf("expected Cold to be retained but rejected, got %+v", state)
	}

	status, body = post(t, base+"/reapply", nil)
	if status != http.StatusOK {
		t.Fatalf("reapply failed: %d %s", status, body)
	}

	req, err := http.NewRequest(http.MethodDelete, base+"/session", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /session: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.HasBase || state.Colors != 0 || state.Retained.BaseImage != "" {
		t.Fatalf("expected empty session after reset, got %+v", state)
	}
}
