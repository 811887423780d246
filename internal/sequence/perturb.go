package sequence

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// maxGenerateAttempts bounds how many times Destabilize asks the generator for
// a token that is not already present in the source sequence.
const maxGenerateAttempts = 256

// ErrGeneratorExhausted is returned when the token generator keeps producing
// tokens that already appear in the sequence being destabilized.
var ErrGeneratorExhausted = errors.New("token generator produced no foreign token")

// Generator produces a candidate replacement token.
type Generator[T comparable] func(r *rand.Rand) T

// Destabilize returns a copy of s in which max(1, floor(len(s)*level)) distinct
// positions are replaced by generated tokens that do not occur anywhere in s.
// The input is never modified. An empty input yields an empty copy.
func Destabilize[T comparable](s Sequence[T], level float64, r *rand.Rand, gen Generator[T]) (Sequence[T], error) {
	out := Clone(s)
	if len(s) == 0 {
		return out, nil
	}
	if level < 0 || level > 1 {
		return nil, fmt.Errorf("destabilization level %.2f outside [0,1]", level)
	}

	count := max(1, int(float64(len(s))*level))
	for _, idx := range r.Perm(len(s))[:count] {
		token, err := foreignToken(s, r, gen)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", idx, err)
		}
		out[idx] = token
	}
	return out, nil
}

func foreignToken[T comparable](s Sequence[T], r *rand.Rand, gen Generator[T]) (T, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		candidate := gen(r)
		if !Contains(s, candidate) {
			return candidate, nil
		}
	}
	var zero T
	return zero, ErrGeneratorExhausted
}
