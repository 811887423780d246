package sequence

// Vocabulary is the set of tokens a sequence is allowed to contain.
type Vocabulary[T comparable] struct {
	allowed map[T]struct{}
}

// VerifyResult reports the outcome of checking a sequence against a Vocabulary.
type VerifyResult[T comparable] struct {
	Valid   bool `json:"valid"`
	Invalid []T  `json:"invalid_tokens,omitempty"`
	Checked int  `json:"total_checked"`
}

// NewVocabulary builds a vocabulary from the given tokens.
func NewVocabulary[T comparable](tokens ...T) Vocabulary[T] {
	allowed := make(map[T]struct{}, len(tokens))
	for _, t := range tokens {
		allowed[t] = struct{}{}
	}
	return Vocabulary[T]{allowed: allowed}
}

// Allows reports whether token belongs to the vocabulary.
func (v Vocabulary[T]) Allows(token T) bool {
	_, ok := v.allowed[token]
	return ok
}

// Len returns the number of distinct tokens in the vocabulary.
func (v Vocabulary[T]) Len() int {
	return len(v.allowed)
}

// Verify checks every token of s. Invalid tokens are listed in order of
// appearance, duplicates included.
func (v Vocabulary[T]) Verify(s Sequence[T]) VerifyResult[T] {
	var invalid []T
	for _, t := range s {
		if !v.Allows(t) {
			invalid = append(invalid, t)
		}
	}
	return VerifyResult[T]{
		Valid:   len(invalid) == 0,
		Invalid: invalid,
		Checked: len(s),
	}
}
