package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// DecodeError reports input bytes that are not a readable image.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not read file %q as image: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses PNG, GIF, JPEG, BMP, TIFF, or WebP bytes.
func Decode(name string, data []byte) (Grid, error) {
	if len(data) == 0 {
		return Grid{}, &DecodeError{Name: name, Err: fmt.Errorf("empty input")}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Grid{}, &DecodeError{Name: name, Err: err}
	}
	return FromImage(img), nil
}

// DecodeFile reads and decodes an image from disk.
func DecodeFile(path string) (Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, err
	}
	return Decode(filepath.Base(path), data)
}

// Source is a named blob waiting to be decoded.
type Source struct {
	Name string
	Data []byte
}

// Decoded pairs a source name with its grid. Index is the position of the
// source in the slice passed to DecodeAll.
type Decoded struct {
	Index int
	Name  string
	Grid  Grid
}

// DecodeAll decodes sources with at most workers decodes in flight.
// Results keep the input order. Sources that fail are left out of the result
// and reported together in the returned error; the others still decode.
func DecodeAll(ctx context.Context, sources []Source, workers int) ([]Decoded, error) {
	if workers < 1 {
		workers = 1
	}
	grids := make([]Grid, len(sources))
	errs := make([]error, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sources {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			grids[i], errs[i] = Decode(sources[i].Name, sources[i].Data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var merr *multierror.Error
	out := make([]Decoded, 0, len(sources))
	for i, src := range sources {
		if errs[i] != nil {
			merr = multierror.Append(merr, errs[i])
			continue
		}
		out = append(out, Decoded{Index: i, Name: src.Name, Grid: grids[i]})
	}
	return out, merr.ErrorOrNil()
}
