// Package workspace connects the engine to the filesystem: it reads sprite
// images, archives, and palette documents from disk, writes the rendered
// document, and persists the session manifest used by `reapply`.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/kingrea/spritepal/internal/document"
	"github.com/kingrea/spritepal/internal/engine"
	"github.com/kingrea/spritepal/internal/imaging"
)

// Kind classifies an input path.
type Kind string

const (
	KindImage    Kind = "image"
	KindArchive  Kind = "archive"
	KindDocument Kind = "document"
)

// Classify decides how a path is read based on its extension.
func Classify(path string) (Kind, error) {
	name := filepath.Base(path)
	switch {
	case IsDocumentName(name):
		return KindDocument, nil
	case imaging.IsArchiveName(name):
		return KindArchive, nil
	case imaging.IsImageName(name):
		return KindImage, nil
	default:
		return "", fmt.Errorf("workspace: %s is not an image, archive, or palette document", path)
	}
}

// IsDocumentName reports whether name looks like a palette document.
func IsDocumentName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".palettes", ".json":
		return true
	}
	return false
}

// Loaded groups decoded inputs in the order they were given.
type Loaded struct {
	Images    []engine.NamedImage
	Documents []engine.Fragment
	// ImagePaths and DocumentPaths run parallel to Images and Documents and
	// name the file each input came from. Archive members share a path.
	ImagePaths    []string
	DocumentPaths []string
}

// Loader reads inputs from disk.
type Loader struct {
	codec   *document.Codec
	workers int
}

// NewLoader builds a loader decoding at most workers images at once.
func NewLoader(codec *document.Codec, workers int) *Loader {
	if codec == nil {
		codec = document.NewCodec()
	}
	if workers < 1 {
		workers = 1
	}
	return &Loader{codec: codec, workers: workers}
}

// LoadImage reads and decodes a single image, e.g. the base sprite.
func (l *Loader) LoadImage(path string) (engine.NamedImage, error) {
	grid, err := imaging.DecodeFile(path)
	if err != nil {
		return engine.NamedImage{}, err
	}
	return engine.NamedImage{Name: filepath.Base(path), Grid: grid}, nil
}

// LoadDocument reads and parses a palette document.
func (l *Loader) LoadDocument(path string) (engine.Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Fragment{}, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	return l.codec.Parse(filepath.Base(path), data)
}

// Load reads every path. Archives are expanded into their image members.
// Inputs that fail are reported together; the rest are still returned.
func (l *Loader) Load(ctx context.Context, paths []string) (Loaded, error) {
	var (
		out     Loaded
		merr    *multierror.Error
		sources []imaging.Source
		origins []string
	)
	for _, path := range paths {
		kind, err := Classify(path)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if kind == KindDocument {
			frag, err := l.LoadDocument(path)
			if err != nil {
				merr = multierror.Append(merr, err)
				continue
			}
			out.Documents = append(out.Documents, frag)
			out.DocumentPaths = append(out.DocumentPaths, path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("workspace: read %s: %w", path, err))
			continue
		}
		if kind == KindImage {
			sources = append(sources, imaging.Source{Name: filepath.Base(path), Data: data})
			origins = append(origins, path)
			continue
		}
		members, err := imaging.ExpandArchive(filepath.Base(path), data)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		for _, member := range members {
			sources = append(sources, member)
			origins = append(origins, path)
		}
	}

	decoded, err := imaging.DecodeAll(ctx, sources, l.workers)
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	for _, d := range decoded {
		out.Images = append(out.Images, engine.NamedImage{Name: d.Name, Grid: d.Grid})
		out.ImagePaths = append(out.ImagePaths, origins[d.Index])
	}
	return out, merr.ErrorOrNil()
}
