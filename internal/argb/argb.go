// Package argb models the packed 32-bit colour values stored in palette
// documents. Alpha occupies the most significant byte, followed by red,
// green, and blue.
package argb

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ErrInvalidHex indicates a colour string could not be parsed.
var ErrInvalidHex = errors.New("argb: invalid colour value")

// Color is a packed ARGB value. Two colours are equal when their channel
// bytes are equal.
type Color uint32

// Transparent is the zero colour. Fully transparent pixels never enter a
// colour table, so the zero value doubles as "no colour".
const Transparent Color = 0

// Pack combines channel bytes into a Color.
func Pack(r, g, b, a uint8) Color {
	var value uint32
	for _, comp := range [4]uint8{a, r, g, b} {
		value = value*256 + uint32(comp)
	}
	return Color(value)
}

// Unpack splits a Color into its channels in (a, r, g, b) order.
func Unpack(c Color) (a, r, g, b uint8) {
	value := uint32(c)
	b = uint8(value % 256)
	value /= 256
	g = uint8(value % 256)
	value /= 256
	r = uint8(value % 256)
	value /= 256
	a = uint8(value % 256)
	return a, r, g, b
}

// FromColor converts any image/color value into a packed, non-premultiplied Color.
func FromColor(c color.Color) Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Pack(n.R, n.G, n.B, n.A)
}

// A returns the alpha channel.
func (c Color) A() uint8 { return uint8(c >> 24) }

// R returns the red channel.
func (c Color) R() uint8 { return uint8(c >> 16) }

// G returns the green channel.
func (c Color) G() uint8 { return uint8(c >> 8) }

// B returns the blue channel.
func (c Color) B() uint8 { return uint8(c) }

// IsTransparent reports whether the alpha channel is zero.
func (c Color) IsTransparent() bool { return c.A() == 0 }

// NRGBA returns the colour as a non-premultiplied image/color value.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: c.A()}
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return c.NRGBA().RGBA()
}

// Hex returns the persisted form of the colour, see FormatHex.
func (c Color) Hex() string {
	return FormatHex(c)
}

// String renders the colour as RGBA(r,g,b,a) for human-readable messages.
func (c Color) String() string {
	return fmt.Sprintf("RGBA(%d,%d,%d,%d)", c.R(), c.G(), c.B(), c.A())
}

// FormatHex renders the colour as 0xAARRGGBB: upper-case, zero padded.
func FormatHex(c Color) string {
	return fmt.Sprintf("0x%08X", uint32(c))
}

// ParseHex parses a 0x-prefixed hexadecimal colour. Bare decimal numbers are
// also accepted since some editors write them.
func ParseHex(value string) (Color, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidHex)
	}
	var (
		parsed uint64
		err    error
	)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		digits := trimmed[2:]
		if digits == "" || len(digits) > 8 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidHex, value)
		}
		parsed, err = strconv.ParseUint(digits, 16, 32)
	} else {
		parsed, err = strconv.ParseUint(trimmed, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHex, value)
	}
	return Color(parsed), nil
}
