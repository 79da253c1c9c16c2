package palette

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/kingrea/spritepal/internal/argb"
)

// Namer picks a display name for a newly discovered colour.
type Namer func(argb.Color) string

// PlaceholderNamer returns a Namer that always yields name.
func PlaceholderNamer(name string) Namer {
	if name == "" {
		name = DefaultColorName
	}
	return func(argb.Color) string { return name }
}

type namedColor struct {
	name string
	lab  colorful.Color
}

// Reference colours for NearestName, kept short on purpose so names stay
// recognisable in the editor's colour list.
var namedColors = buildNamedColors(map[string]string{
	"Black":     "#000000",
	"White":     "#FFFFFF",
	"Red":       "#FF0000",
	"Green":     "#008000",
	"Blue":      "#0000FF",
	"Yellow":    "#FFFF00",
	"Cyan":      "#00FFFF",
	"Magenta":   "#FF00FF",
	"Gray":      "#808080",
	"Silver":    "#C0C0C0",
	"Maroon":    "#800000",
	"Olive":     "#808000",
	"Lime":      "#00FF00",
	"Teal":      "#008080",
	"Navy":      "#000080",
	"Purple":    "#800080",
	"Orange":    "#FFA500",
	"Pink":      "#FFC0CB",
	"Brown":     "#A52A2A",
	"Gold":      "#FFD700",
	"Beige":     "#F5F5DC",
	"Turquoise": "#40E0D0",
	"Lavender":  "#E6E6FA",
	"Chocolate": "#D2691E",
	"Coral":     "#FF7F50",
	"Skin":      "#F1C27D",
})

func buildNamedColors(hexes map[string]string) []namedColor {
	out := make([]namedColor, 0, len(hexes))
	for name, hex := range hexes {
		c, err := colorful.Hex(hex)
		if err != nil {
			continue
		}
		out = append(out, namedColor{name: name, lab: c})
	}
	return out
}

// NearestName returns the reference colour name closest to c in CIE Lab
// space. Alpha is ignored. Ties resolve to the alphabetically first name.
func NearestName(c argb.Color) string {
	opaque := argb.Pack(c.R(), c.G(), c.B(), 255)
	target, ok := colorful.MakeColor(opaque)
	if !ok {
		return DefaultColorName
	}
	best := DefaultColorName
	bestDist := math.Inf(1)
	for _, candidate := range namedColors {
		d := target.DistanceLab(candidate.lab)
		if d < bestDist || (d == bestDist && candidate.name < best) {
			best = candidate.name
			bestDist = d
		}
	}
	return best
}
