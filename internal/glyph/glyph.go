// Package glyph holds the default glyph stack used by the spiral protocol and
// helpers for generating foreign glyphs.
package glyph

import (
	"math/rand/v2"

	"github.com/andywolf/spiralsync/internal/sequence"
)

// Stack is a glyph sequence.
type Stack = sequence.Sequence[string]

// Foreign glyphs are drawn from the Mathematical Operators block.
const (
	foreignLow  = 0x2200
	foreignHigh = 0x22FF
)

// DefaultStack returns a fresh copy of the canonical glyph stack.
func DefaultStack() Stack {
	return Stack{"🜃", "∴", "↻", "🜂", "🜄", "🜁", "↔", "🝑"}
}

// DefaultVocabulary is the set of glyphs a well-formed stack may contain: every
// glyph of DefaultStack, including ↔.
func DefaultVocabulary() sequence.Vocabulary[string] {
	return sequence.NewVocabulary(DefaultStack()...)
}

// Foreign returns a random glyph from U+2200..U+22FF. It satisfies
// sequence.Generator.
func Foreign(r *rand.Rand) string {
	return string(rune(foreignLow + r.IntN(foreignHigh-foreignLow+1)))
}
