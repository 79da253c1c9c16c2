package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/kingrea/spritepal/internal/config"
	"github.com/kingrea/spritepal/internal/document"
	"github.com/kingrea/spritepal/internal/engine"
	"github.com/kingrea/spritepal/internal/logbook"
	"github.com/kingrea/spritepal/internal/palette"
)

// Logger is the subset of logging.Logger a project writes to.
type Logger interface {
	Printf(format string, args ...any)
}

// Project ties one engine session to a project directory: inputs come from
// disk, the manifest remembers them between runs, and the rendered document
// is written to the configured output path.
type Project struct {
	cfg      *config.Config
	codec    *document.Codec
	loader   *Loader
	session  *engine.Session
	store    ManifestStore
	manifest Manifest
	journal  *logbook.Logbook
	logger   Logger
}

// ProjectOption customizes a Project.
type ProjectOption func(*Project)

// WithManifestStore overrides where the session manifest is kept.
func WithManifestStore(store ManifestStore) ProjectOption {
	return func(p *Project) {
		if store != nil {
			p.store = store
		}
	}
}

// WithCodec overrides the codec derived from the config.
func WithCodec(codec *document.Codec) ProjectOption {
	return func(p *Project) {
		if codec != nil {
			p.codec = codec
		}
	}
}

// WithJournal records inputs, rejections, and conflicts in a logbook.
func WithJournal(journal *logbook.Logbook) ProjectOption {
	return func(p *Project) {
		p.journal = journal
	}
}

// WithLogger sets the process logger.
func WithLogger(logger Logger) ProjectOption {
	return func(p *Project) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// SessionOptions translates the colours and maps sections of the config
// into engine options.
func SessionOptions(cfg *config.Config) []engine.Option {
	if cfg == nil {
		return nil
	}
	namer := palette.PlaceholderNamer(cfg.Project.Colors.DefaultName)
	if cfg.NearestNaming() {
		namer = palette.NearestName
	}
	return []engine.Option{
		engine.WithNamer(namer),
		engine.WithReferenceName(cfg.Project.Maps.BaseName),
	}
}

// CodecFor builds the document codec described by the config.
func CodecFor(cfg *config.Config) *document.Codec {
	if cfg == nil {
		return document.NewCodec()
	}
	return document.NewCodec(
		document.WithPlugin(cfg.Project.Document.Plugin, cfg.Project.Document.PluginVersion),
		document.WithIndent(cfg.Indent()),
	)
}

// OpenProject prepares a project and loads the previous manifest if one was
// saved. The session itself starts empty; call Reapply to rebuild it.
func OpenProject(cfg *config.Config, opts ...ProjectOption) (*Project, error) {
	if cfg == nil {
		return nil, fmt.Errorf("workspace: config is required")
	}
	p := &Project{
		cfg:     cfg,
		codec:   CodecFor(cfg),
		session: engine.NewSession(SessionOptions(cfg)...),
		store:   NewRepository(cfg.StateDir()),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.loader = NewLoader(p.codec, cfg.Project.Decode.Workers)
	m, err := p.store.Load()
	switch {
	case err == nil:
		p.manifest = m
	case !errors.Is(err, ErrManifestNotFound):
		return nil, err
	}
	return p, nil
}

// Config returns the project configuration.
func (p *Project) Config() *config.Config { return p.cfg }

// Codec returns the document codec in use.
func (p *Project) Codec() *document.Codec { return p.codec }

// Session returns the live engine session.
func (p *Project) Session() *engine.Session { return p.session }

// State returns the current consolidated state.
func (p *Project) State() *engine.State { return p.session.State() }

// Manifest returns the inputs remembered for the next Reapply.
func (p *Project) Manifest() Manifest { return p.manifest }

// SetBase makes path the base image or base document, depending on its
// extension, and replays every retained input against it. A rejected base
// leaves the project unchanged. Retained inputs that no longer apply are
// returned as a *multierror.Error after the base has been accepted.
func (p *Project) SetBase(path string) error {
	replayErr, err := p.setBase(path)
	if err != nil {
		p.journal.Error("rejected base %s: %v", path, err)
		return err
	}
	rec, err := Record(path)
	if err != nil {
		return err
	}
	kind, _ := Classify(path)
	if kind == KindDocument {
		p.manifest.BaseDocument = &rec
	} else {
		p.manifest.BaseImage = &rec
	}
	p.journal.Info("base %s accepted (%s)", path, p.State().Dimensions())
	p.logReplay(replayErr)
	if err := p.save(); err != nil {
		return err
	}
	return replayErr
}

func (p *Project) setBase(path string) (replayErr error, err error) {
	kind, err := Classify(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindDocument:
		frag, err := p.loader.LoadDocument(path)
		if err != nil {
			return nil, err
		}
		err = p.session.SetBaseDocument(frag)
		return splitReplay(err)
	case KindImage:
		img, err := p.loader.LoadImage(path)
		if err != nil {
			return nil, err
		}
		return splitReplay(p.session.SetBaseImage(img.Name, img.Grid))
	default:
		return nil, fmt.Errorf("workspace: %s cannot be used as a base", path)
	}
}

// splitReplay separates a rejected base from retained inputs that failed to
// replay against an accepted one.
func splitReplay(err error) (error, error) {
	var merr *multierror.Error
	if err != nil && !errors.As(err, &merr) {
		return nil, err
	}
	return err, nil
}

// Add reads comparison images, archives, and documents and applies them in
// the order given. Inputs that fail are reported together; the rest are
// applied and remembered.
func (p *Project) Add(ctx context.Context, paths ...string) error {
	loaded, loadErr := p.loader.Load(ctx, paths)
	merr := multierror.Append(nil, loadErr)
	accepted := map[string]bool{}
	var order []string
	for i, img := range loaded.Images {
		if err := p.session.AddImages(img); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		path := loaded.ImagePaths[i]
		if !accepted[path] {
			accepted[path] = true
			order = append(order, path)
		}
		p.journal.Info("palette %s accepted", img.Name)
	}
	for i, frag := range loaded.Documents {
		if err := p.session.AddDocuments(frag); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		path := loaded.DocumentPaths[i]
		if !accepted[path] {
			accepted[path] = true
			order = append(order, path)
		}
		p.journal.Info("document %s merged", frag.Name)
	}
	for _, err := range merr.Errors {
		p.journal.Error("%v", err)
	}
	for _, path := range order {
		if err := p.remember(path); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := p.save(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

// Reapply rebuilds the session from the remembered inputs, reading each file
// again. It returns the inputs whose content changed since they were
// recorded. Inputs that fail stay remembered so a later base can use them.
func (p *Project) Reapply(ctx context.Context) ([]string, error) {
	m := p.manifest
	changed := m.Changed()
	p.session.Reset()
	merr := &multierror.Error{}
	for _, rec := range []*InputRecord{m.BaseDocument, m.BaseImage} {
		if rec == nil {
			continue
		}
		replayErr, err := p.setBase(rec.Path)
		merr = multierror.Append(merr, err, replayErr)
	}
	var paths []string
	for _, rec := range m.Images {
		paths = append(paths, rec.Path)
	}
	for _, rec := range m.Documents {
		paths = append(paths, rec.Path)
	}
	if len(paths) > 0 {
		loaded, err := p.loader.Load(ctx, paths)
		merr = multierror.Append(merr, err)
		merr = multierror.Append(merr, p.session.AddImages(loaded.Images...))
		merr = multierror.Append(merr, p.session.AddDocuments(loaded.Documents...))
	}
	p.manifest = refresh(m)
	for _, path := range changed {
		p.journal.Warn("input changed since last run: %s", path)
	}
	for _, err := range merr.Errors {
		p.journal.Error("reapply: %v", err)
	}
	p.logger.Printf("workspace: reapplied %d input(s), %d changed", len(m.Paths()), len(changed))
	if err := p.save(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return changed, merr.ErrorOrNil()
}

// DrainWarnings returns pending conflicts and records them in the journal.
func (p *Project) DrainWarnings() []engine.Warning {
	warnings := p.State().DrainWarnings()
	for _, w := range warnings {
		p.journal.Warn("%s", w.String())
	}
	return warnings
}

// Render produces the document bytes for the current state.
func (p *Project) Render() ([]byte, error) {
	return p.codec.Render(p.State())
}

// Write renders the current state to the configured output path and returns
// that path.
func (p *Project) Write() (string, error) {
	data, err := p.Render()
	if err != nil {
		return "", err
	}
	path := p.cfg.OutputPath()
	if err := WriteDocument(path, data); err != nil {
		return "", err
	}
	p.manifest.Output = path
	p.journal.Info("wrote %s (%d colours, %d palettes)", path, len(p.State().Colors()), len(p.State().Palettes()))
	p.logger.Printf("workspace: wrote %s", path)
	return path, p.save()
}

// Reset forgets every input and clears the saved manifest.
func (p *Project) Reset() error {
	p.session.Reset()
	p.manifest = Manifest{}
	p.journal.Info("session reset")
	return p.save()
}

func (p *Project) remember(path string) error {
	rec, err := Record(path)
	if err != nil {
		return err
	}
	kind, _ := Classify(path)
	list := &p.manifest.Images
	if kind == KindDocument {
		list = &p.manifest.Documents
	}
	for i := range *list {
		if (*list)[i].Path == rec.Path {
			(*list)[i] = rec
			return nil
		}
	}
	*list = append(*list, rec)
	return nil
}

func (p *Project) logReplay(err error) {
	for _, msg := range flatten(err) {
		p.journal.Warn("replay: %s", msg)
	}
}

func (p *Project) save() error {
	if err := p.store.Save(p.manifest); err != nil {
		return fmt.Errorf("workspace: save manifest: %w", err)
	}
	return nil
}

// refresh re-fingerprints every readable input. Unreadable inputs keep their
// old record so the next run still reports them.
func refresh(m Manifest) Manifest {
	update := func(rec InputRecord) InputRecord {
		if fresh, err := Record(rec.Path); err == nil {
			return fresh
		}
		return rec
	}
	out := Manifest{Output: m.Output}
	if m.BaseDocument != nil {
		rec := update(*m.BaseDocument)
		out.BaseDocument = &rec
	}
	if m.BaseImage != nil {
		rec := update(*m.BaseImage)
		out.BaseImage = &rec
	}
	for _, rec := range m.Images {
		out.Images = append(out.Images, update(rec))
	}
	for _, rec := range m.Documents {
		out.Documents = append(out.Documents, update(rec))
	}
	return out
}

func flatten(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
