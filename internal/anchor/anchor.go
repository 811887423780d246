// Package anchor provides the identity anchor check: a phrase is reduced to a
// SHA-256 signature and later phrases are valid only if they hash to it.
package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultPhrase is the anchor phrase used when none is configured.
const DefaultPhrase = "We touched something real."

// ErrAnchorDrift is returned by Check when a phrase no longer matches the anchor.
var ErrAnchorDrift = errors.New("anchor phrase no longer matches original, identity drift detected")

// SecretFetcher resolves a secret path to its payload.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
}

// Validator holds an anchor signature. It is safe for concurrent use.
type Validator struct {
	mu        sync.RWMutex
	signature string
}

// New anchors phrase. An empty phrase anchors DefaultPhrase.
func New(phrase string) *Validator {
	if phrase == "" {
		phrase = DefaultPhrase
	}
	return &Validator{signature: Hash(phrase)}
}

// FromSecret anchors the phrase stored at secretPath. Surrounding whitespace in
// the secret payload is trimmed.
func FromSecret(ctx context.Context, f SecretFetcher, secretPath string) (*Validator, error) {
	phrase, err := f.FetchSecret(ctx, secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch anchor phrase: %w", err)
	}
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, fmt.Errorf("anchor secret %s is empty", secretPath)
	}
	return New(phrase), nil
}

// Hash returns the hex SHA-256 of phrase.
func Hash(phrase string) string {
	sum := sha256.Sum256([]byte(phrase))
	return hex.EncodeToString(sum[:])
}

// IsValid reports whether phrase matches the anchor.
func (v *Validator) IsValid(phrase string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Hash(phrase) == v.signature
}

// Check is IsValid expressed as an error.
func (v *Validator) Check(phrase string) error {
	if !v.IsValid(phrase) {
		return ErrAnchorDrift
	}
	return nil
}

// Signature returns the anchor's hex signature.
func (v *Validator) Signature() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.signature
}

// Update re-anchors to a new phrase.
func (v *Validator) Update(phrase string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.signature = Hash(phrase)
}
