package engine

import (
	"fmt"

	"github.com/kingrea/spritepal/internal/argb"
)

// ConflictKind distinguishes the two ways a pixel can be rejected.
type ConflictKind string

const (
	// ConflictUnmapped: the target pixel sits where the base has no known colour.
	ConflictUnmapped ConflictKind = "unmapped"
	// ConflictContradiction: the base colour was already mapped to another target.
	ConflictContradiction ConflictKind = "contradiction"
)

// Warning is a non-fatal colour conflict. The offending pixel or entry was
// skipped and processing continued.
type Warning struct {
	Kind ConflictKind
	// Source names the file or document the conflict came from.
	Source string
	// Map is set for conflicts found inside an imported document.
	Map string
	// X and Y locate the first pixel that raised the conflict; -1 for documents.
	X, Y     int
	Base     argb.Color
	Target   argb.Color
	Previous argb.Color
}

func (w Warning) String() string {
	if w.Map != "" {
		switch w.Kind {
		case ConflictUnmapped:
			return fmt.Sprintf("Found conflicting colour in document %q. Map %q maps transparent/unknown colour to %s", w.Source, w.Map, w.Target)
		default:
			return fmt.Sprintf("Found conflicting colour in document %q. Map %q maps %s to %s. Previously mapped to %s", w.Source, w.Map, w.Base, w.Target, w.Previous)
		}
	}
	switch w.Kind {
	case ConflictUnmapped:
		return fmt.Sprintf("Found conflicting colour in file %q. @(%d, %d) Trying to map transparent/unmapped colour to %s", w.Source, w.X, w.Y, w.Target)
	default:
		return fmt.Sprintf("Found conflicting colour in file %q. @(%d, %d) Trying to map %s to %s. Previously mapped to %s", w.Source, w.X, w.Y, w.Base, w.Target, w.Previous)
	}
}

type conflictKey struct {
	kind   ConflictKind
	base   argb.Color
	target argb.Color
}

// conflictLog reports each (base, target) pair once per derivation pass.
type conflictLog struct {
	seen     map[conflictKey]struct{}
	warnings []Warning
}

func newConflictLog() *conflictLog {
	return &conflictLog{seen: map[conflictKey]struct{}{}}
}

func (l *conflictLog) add(w Warning) {
	key := conflictKey{kind: w.Kind, base: w.Base, target: w.Target}
	if _, dup := l.seen[key]; dup {
		return
	}
	l.seen[key] = struct{}{}
	l.warnings = append(l.warnings, w)
}
