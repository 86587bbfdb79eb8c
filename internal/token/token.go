// Package token generates the short random game identifiers.
package token

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	// DefaultAlphabet matches the IDs users type into the games: upper-case
	// letters and digits, 36 symbols.
	DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLength   = 3
)

// Generator produces fixed-length tokens drawn uniformly, with replacement,
// from a fixed alphabet. Tokens are short and not cryptographically secure;
// uniqueness is the allocator's job, not the generator's.
type Generator struct {
	alphabet []rune
	length   int
}

// NewGenerator validates the alphabet and length. Pass empty/zero values to
// get the defaults. The alphabet is treated as a sequence of runes, so
// multi-byte symbols are drawn whole.
func NewGenerator(alphabet string, length int) (*Generator, error) {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length == 0 {
		length = DefaultLength
	}
	if length < 1 {
		return nil, fmt.Errorf("token length must be positive, got %d", length)
	}
	for i, r := range alphabet {
		if strings.ContainsRune(alphabet[i+len(string(r)):], r) {
			return nil, fmt.Errorf("token alphabet contains duplicate symbol %q", r)
		}
	}
	return &Generator{alphabet: []rune(alphabet), length: length}, nil
}

// Generate returns a fresh token. No side effects.
func (g *Generator) Generate() string {
	b := make([]rune, g.length)
	for i := range b {
		b[i] = g.alphabet[rand.Intn(len(g.alphabet))]
	}
	return string(b)
}

// Length returns the configured token length.
func (g *Generator) Length() int { return g.length }

// Alphabet returns the configured alphabet.
func (g *Generator) Alphabet() string { return string(g.alphabet) }
