// Package server exposes one palette session over HTTP so an editor plugin
// or a browser page can upload sprites and download the consolidated
// document.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/spritepal/internal/document"
	"github.com/kingrea/spritepal/internal/engine"
	"github.com/kingrea/spritepal/internal/imaging"
	"github.com/kingrea/spritepal/internal/logbook"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

var errServerDisabled = errors.New("server: disabled in config")

// Logger is the subset of logging.Logger the server needs.
type Logger interface {
	Printf(format string, args ...any)
}

// Server wraps the HTTP listener and the session it serves.
type Server struct {
	settings Settings
	codec    *document.Codec
	logger   Logger
	journal  *logbook.Logbook
	clock    func() time.Time
	workers  int
	filename string

	// sessionMu serializes every request that touches the session.
	sessionMu   sync.Mutex
	session     *engine.Session
	loggedState *engine.State
	logged      int

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithSession serves an existing session instead of a fresh one.
func WithSession(session *engine.Session) Option {
	return func(s *Server) {
		if session != nil {
			s.session = session
		}
	}
}

// WithCodec sets the document codec used to parse uploads and render output.
func WithCodec(codec *document.Codec) Option {
	return func(s *Server) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLogbook records accepted inputs and conflicts in the session journal.
func WithLogbook(journal *logbook.Logbook) Option {
	return func(s *Server) {
		s.journal = journal
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDecodeWorkers bounds parallel decoding of archive uploads.
func WithDecodeWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFilename names the document offered by GET /document.
func WithFilename(name string) Option {
	return func(s *Server) {
		if name = strings.TrimSpace(name); name != "" {
			s.filename = name
		}
	}
}

// NewServer prepares a server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		codec:    document.NewCodec(),
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		workers:  1,
		filename: "costumes.palettes",
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.session == nil {
		s.session = engine.NewSession()
	}
	return s
}

// Handler returns the routing table without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/base/image", s.handleBaseImage)
	mux.HandleFunc("/base/document", s.handleBaseDocument)
	mux.HandleFunc("/palettes/image", s.handlePaletteImage)
	mux.HandleFunc("/palettes/document", s.handlePaletteDocument)
	mux.HandleFunc("/reapply", s.handleReapply)
	mux.HandleFunc("/document", s.handleDocument)
	mux.HandleFunc("/warnings", s.handleWarnings)
	mux.HandleFunc("/session", s.handleSession)
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server: server is nil")
	}
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server: already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server: serve error: %v", err)
		}
	}()
	s.logger.Printf("server: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       APIVersion,
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleBaseImage(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	name := uploadName(r, "base.png")
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	grid, err := imaging.Decode(name, body)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.respondRebase(w, name, s.session.SetBaseImage(name, grid))
}

func (s *Server) handleBaseDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	name := uploadName(r, "base.palettes")
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	frag, err := s.codec.Parse(name, body)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.respondRebase(w, name, s.session.SetBaseDocument(frag))
}

func (s *Server) handlePaletteImage(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	name := uploadName(r, "")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing name query parameter"})
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	images, decodeErr := s.decodeUpload(r.Context(), name, body)
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	before := len(s.session.Retained().Images)
	var err error
	if len(images) > 0 {
		err = s.session.AddImages(images...)
	}
	s.respondBatch(w, name, before, len(s.session.Retained().Images), combine(decodeErr, err))
}

func (s *Server) handlePaletteDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	name := uploadName(r, "")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing name query parameter"})
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	frag, err := s.codec.Parse(name, body)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	before := len(s.session.Retained().Documents)
	err = s.session.AddDocuments(frag)
	s.respondBatch(w, name, before, len(s.session.Retained().Documents), err)
}

func (s *Server) handleReapply(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.respondRebase(w, "reapply", s.session.Reapply())
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	s.sessionMu.Lock()
	data, err := s.codec.Render(s.session.State())
	s.sessionMu.Unlock()
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	s.sessionMu.Lock()
	s.noteWarnings()
	drained := s.session.State().DrainWarnings()
	s.logged = 0
	s.sessionMu.Unlock()
	resp := warningsResponse{Warnings: make([]string, 0, len(drained))}
	for _, warning := range drained {
		resp.Warnings = append(resp.Warnings, warning.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if r.Method == http.MethodDelete {
		s.session.Reset()
		s.journal.Info("session reset")
		s.logger.Printf("server: session reset")
	}
	writeJSON(w, http.StatusOK, summarize(s.session))
}

// decodeUpload turns an image or archive upload into named images. Archive
// members that fail to decode are reported but do not block the others.
func (s *Server) decodeUpload(ctx context.Context, name string, body []byte) ([]engine.NamedImage, error) {
	if !imaging.IsArchiveName(name) {
		grid, err := imaging.Decode(name, body)
		if err != nil {
			return nil, err
		}
		return []engine.NamedImage{{Name: name, Grid: grid}}, nil
	}
	members, err := imaging.ExpandArchive(name, body)
	if err != nil {
		return nil, &imaging.DecodeError{Name: name, Err: err}
	}
	decoded, err := imaging.DecodeAll(ctx, members, s.workers)
	images := make([]engine.NamedImage, 0, len(decoded))
	for _, d := range decoded {
		images = append(images, engine.NamedImage{Name: d.Name, Grid: d.Grid})
	}
	return images, err
}

// respondRebase answers a request that replaced or replayed the base. A
// plain error means the base itself was rejected and nothing changed; an
// aggregated one lists retained inputs that no longer apply.
func (s *Server) respondRebase(w http.ResponseWriter, name string, err error) {
	if err != nil && !isAggregate(err) {
		s.journal.Error("rejected %s: %v", name, err)
		s.fail(w, err)
		return
	}
	s.journal.Info("accepted base %s", name)
	for _, msg := range errorList(err) {
		s.journal.Warn("replay: %s", msg)
	}
	s.noteWarnings()
	resp := summarize(s.session)
	resp.Errors = errorList(err)
	writeJSON(w, http.StatusOK, resp)
}

// respondBatch answers an upload that adds comparison inputs. When nothing
// was accepted the request fails; otherwise rejected members are listed.
func (s *Server) respondBatch(w http.ResponseWriter, name string, before, after int, err error) {
	for _, msg := range errorList(err) {
		s.journal.Error("rejected %s", msg)
	}
	if after == before && err != nil {
		s.fail(w, err)
		return
	}
	s.journal.Info("accepted %s (%d input(s))", name, after-before)
	s.noteWarnings()
	resp := summarize(s.session)
	resp.Errors = errorList(err)
	writeJSON(w, http.StatusOK, resp)
}

// noteWarnings copies warnings not yet journaled into the logbook. Callers
// hold sessionMu.
func (s *Server) noteWarnings() {
	state := s.session.State()
	if state != s.loggedState {
		s.loggedState = state
		s.logged = 0
	}
	warnings := state.Warnings()
	if s.logged > len(warnings) {
		s.logged = 0
	}
	for _, warning := range warnings[s.logged:] {
		s.journal.Warn("%s", warning.String())
	}
	s.logged = len(warnings)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if isInputError(err) {
		status = http.StatusUnprocessableEntity
	} else {
		s.logger.Printf("server: %v", err)
	}
	resp := errorResponse{Error: err.Error()}
	if isAggregate(err) {
		resp.Error = "one or more inputs were rejected"
		resp.Details = errorList(err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty body"})
		return nil, false
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload exceeds limit"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read body"})
		return nil, false
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty body"})
		return nil, false
	}
	return body, true
}

func uploadName(r *http.Request, fallback string) string {
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		return name
	}
	return fallback
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
