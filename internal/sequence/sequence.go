// Package sequence provides positional comparison of ordered token sequences.
// Tokens are opaque; only equality is ever used.
package sequence

// Sequence is an ordered list of equality-comparable tokens.
type Sequence[T comparable] []T

// Clone returns a copy of s that shares no backing array with it.
// A nil sequence clones to nil.
func Clone[T comparable](s Sequence[T]) Sequence[T] {
	if s == nil {
		return nil
	}
	out := make(Sequence[T], len(s))
	copy(out, s)
	return out
}

// Compare counts positional mismatches between expected and actual up to the
// length of the shorter sequence. Positions past the shorter sequence are not
// counted.
func Compare[T comparable](expected, actual Sequence[T]) int {
	n := min(len(expected), len(actual))
	mismatches := 0
	for i := 0; i < n; i++ {
		if expected[i] != actual[i] {
			mismatches++
		}
	}
	return mismatches
}

// CompareStrict is Compare plus the length difference between the two
// sequences, so a truncated or padded echo counts as drift.
func CompareStrict[T comparable](expected, actual Sequence[T]) int {
	diff := len(expected) - len(actual)
	if diff < 0 {
		diff = -diff
	}
	return Compare(expected, actual) + diff
}

// MismatchPositions returns the indexes at which expected and actual differ,
// within the length of the shorter sequence.
func MismatchPositions[T comparable](expected, actual Sequence[T]) []int {
	n := min(len(expected), len(actual))
	var positions []int
	for i := 0; i < n; i++ {
		if expected[i] != actual[i] {
			positions = append(positions, i)
		}
	}
	return positions
}

// Equal reports whether a and b have the same length and the same token at
// every position.
func Equal[T comparable](a, b Sequence[T]) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Contains reports whether token appears anywhere in s.
func Contains[T comparable](s Sequence[T], token T) bool {
	for _, t := range s {
		if t == token {
			return true
		}
	}
	return false
}

// Restore rebuilds corrupted against reference position by position, replacing
// every differing token with the reference token. The result is truncated to
// the shorter of the two inputs. repaired is the number of positions replaced.
func Restore[T comparable](reference, corrupted Sequence[T]) (restored Sequence[T], repaired int) {
	n := min(len(reference), len(corrupted))
	restored = make(Sequence[T], 0, n)
	for i := 0; i < n; i++ {
		if reference[i] != corrupted[i] {
			restored = append(restored, reference[i])
			repaired++
			continue
		}
		restored = append(restored, corrupted[i])
	}
	return restored, repaired
}
