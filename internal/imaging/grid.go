// Package imaging decodes sprite files into flat RGBA pixel grids.
//
// A Grid stores 4 bytes per pixel (R, G, B, A, non-premultiplied) in
// row-major order, which is the shape the consolidation engine consumes.
package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/kingrea/spritepal/internal/argb"
)

// Grid is a decoded image.
type Grid struct {
	Width  int
	Height int
	Pix    []byte
}

// NewGrid allocates a fully transparent grid.
func NewGrid(width, height int) Grid {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return Grid{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

// Validate checks the pixel buffer matches the declared dimensions.
func (g Grid) Validate() error {
	if g.Width < 0 || g.Height < 0 {
		return fmt.Errorf("imaging: negative dimensions %dx%d", g.Width, g.Height)
	}
	if len(g.Pix) != g.Width*g.Height*4 {
		return fmt.Errorf("imaging: pixel buffer holds %d bytes, want %d for %dx%d", len(g.Pix), g.Width*g.Height*4, g.Width, g.Height)
	}
	return nil
}

// At returns the packed colour of pixel i (row*width+col).
func (g Grid) At(i int) argb.Color {
	o := i * 4
	return argb.Pack(g.Pix[o], g.Pix[o+1], g.Pix[o+2], g.Pix[o+3])
}

// Set writes a colour at (x, y).
func (g Grid) Set(x, y int, c argb.Color) {
	o := (y*g.Width + x) * 4
	g.Pix[o] = c.R()
	g.Pix[o+1] = c.G()
	g.Pix[o+2] = c.B()
	g.Pix[o+3] = c.A()
}

// Len returns the pixel count.
func (g Grid) Len() int {
	return g.Width * g.Height
}

// FromImage copies any image.Image into a Grid.
func FromImage(img image.Image) Grid {
	bounds := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Stride == bounds.Dx()*4 && bounds.Min == (image.Point{}) {
		pix := make([]byte, len(nrgba.Pix))
		copy(pix, nrgba.Pix)
		return Grid{Width: bounds.Dx(), Height: bounds.Dy(), Pix: pix}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return Grid{Width: bounds.Dx(), Height: bounds.Dy(), Pix: dst.Pix}
}

// Image exposes the grid as an *image.NRGBA sharing the same buffer.
func (g Grid) Image() *image.NRGBA {
	return &image.NRGBA{Pix: g.Pix, Stride: g.Width * 4, Rect: image.Rect(0, 0, g.Width, g.Height)}
}
