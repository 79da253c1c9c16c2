// Package palette defines the records exchanged between the consolidation
// engine and the document codec: colour records with stable identities and
// named source-to-target palette maps.
package palette

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/spritepal/internal/argb"
)

// DefaultColorName is given to colour records nobody has named yet.
const DefaultColorName = "Untitled Palette Color"

// Metadata is an opaque key/value bag carried through verbatim.
type Metadata map[string]json.RawMessage

// Clone returns an independent copy of the bag.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

var idNamespace = uuid.MustParse("6f1c5b0e-3d2a-4b8e-9a57-0c4e2f7d9b13")

// IDSource assigns identifiers to newly discovered colours and maps.
type IDSource interface {
	ColorID(c argb.Color) string
	MapID(name string) string
}

// StableIDs derives name-based (v5) UUIDs so replaying the same inputs
// yields the same identifiers.
type StableIDs struct{}

func (StableIDs) ColorID(c argb.Color) string {
	return uuid.NewSHA1(idNamespace, []byte("color:"+argb.FormatHex(c))).String()
}

func (StableIDs) MapID(name string) string {
	return uuid.NewSHA1(idNamespace, []byte("map:"+name)).String()
}

// RandomIDs assigns a fresh random UUID every time.
type RandomIDs struct{}

func (RandomIDs) ColorID(argb.Color) string { return NewID() }

func (RandomIDs) MapID(string) string { return NewID() }

// Record binds a stable identifier to one colour value.
type Record struct {
	ID       string
	Color    argb.Color
	Name     string
	Metadata Metadata
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Metadata = r.Metadata.Clone()
	return r
}

// NameFromFile derives a palette map name from a file name by dropping the
// directory and the final extension.
func NameFromFile(file string) string {
	base := filepath.Base(strings.TrimSpace(file))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	ext := filepath.Ext(base)
	if ext == base {
		return base
	}
	return strings.TrimSuffix(base, ext)
}
