package engine

import (
	"github.com/hashicorp/go-multierror"

	"github.com/kingrea/spritepal/internal/imaging"
)

// NamedImage is a decoded comparison or base image with its file name.
type NamedImage struct {
	Name string
	Grid imaging.Grid
}

// Inputs names the inputs a session currently retains.
type Inputs struct {
	BaseDocument string   `json:"base_document,omitempty"`
	BaseImage    string   `json:"base_image,omitempty"`
	Images       []string `json:"images,omitempty"`
	Documents    []string `json:"documents,omitempty"`
}

// Session owns a State plus every input accepted into it, so the state can
// be rebuilt when the base changes.
type Session struct {
	opts  []Option
	state *State

	baseDocument *Fragment
	baseImage    *NamedImage
	images       []NamedImage
	documents    []Fragment
}

// NewSession builds an empty session. The options apply to every State the
// session builds.
func NewSession(opts ...Option) *Session {
	return &Session{opts: opts, state: New(opts...)}
}

// State exposes the current consolidated state.
func (s *Session) State() *State {
	return s.state
}

// Retained lists the names of the retained inputs.
func (s *Session) Retained() Inputs {
	var in Inputs
	if s.baseDocument != nil {
		in.BaseDocument = s.baseDocument.Name
	}
	if s.baseImage != nil {
		in.BaseImage = s.baseImage.Name
	}
	for _, img := range s.images {
		in.Images = append(in.Images, img.Name)
	}
	for _, doc := range s.documents {
		in.Documents = append(in.Documents, doc.Name)
	}
	return in
}

// SetBaseDocument replaces the base document and replays every retained
// input. If the document itself is rejected the session is left untouched;
// a *multierror.Error lists retained inputs that no longer apply.
func (s *Session) SetBaseDocument(frag Fragment) error {
	doc := frag
	return s.rebase(&doc, s.baseImage)
}

// SetBaseImage replaces the base image and replays every retained input.
// Errors follow SetBaseDocument.
func (s *Session) SetBaseImage(name string, grid imaging.Grid) error {
	return s.rebase(s.baseDocument, &NamedImage{Name: name, Grid: grid})
}

// AddImages derives one palette map per image, in order. Images that fail
// are reported together and not retained; the rest are applied.
func (s *Session) AddImages(images ...NamedImage) error {
	var merr *multierror.Error
	for _, img := range images {
		if _, err := s.state.DerivePalette(img.Name, img.Grid); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		s.images = append(s.images, img)
	}
	return merr.ErrorOrNil()
}

// AddDocuments merges documents as regular imports, in order. Documents that
// fail are reported together and not retained.
func (s *Session) AddDocuments(frags ...Fragment) error {
	var merr *multierror.Error
	for _, frag := range frags {
		if err := s.state.MergeDocument(frag, false); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		s.documents = append(s.documents, frag)
	}
	return merr.ErrorOrNil()
}

// Reapply resets the state and replays the retained inputs: base document,
// base image, comparison images, then comparison documents.
func (s *Session) Reapply() error {
	return s.rebase(s.baseDocument, s.baseImage)
}

// Reset forgets every retained input and clears the state.
func (s *Session) Reset() {
	s.baseDocument = nil
	s.baseImage = nil
	s.images = nil
	s.documents = nil
	s.state = New(s.opts...)
}

func (s *Session) rebase(doc *Fragment, base *NamedImage) error {
	next := New(s.opts...)
	if doc != nil {
		if err := next.MergeDocument(*doc, true); err != nil {
			return err
		}
	}
	if base != nil {
		if err := next.DeriveBase(base.Name, base.Grid); err != nil {
			return err
		}
	}
	// Comparison inputs stay retained even when they no longer fit, so a
	// later base swap can bring them back.
	var merr *multierror.Error
	for _, img := range s.images {
		if _, err := next.DerivePalette(img.Name, img.Grid); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	for _, frag := range s.documents {
		if err := next.MergeDocument(frag, false); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	s.baseDocument = doc
	s.baseImage = base
	s.state = next
	return merr.ErrorOrNil()
}
