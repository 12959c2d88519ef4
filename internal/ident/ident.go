package ident

import (
	"errors"
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the URL-safe set paste ids are drawn from.
const Alphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultLength is the id length used when none is configured.
const DefaultLength = 7

// ErrEntropy is returned when the random source fails.
var ErrEntropy = errors.New("random source failure")

// ID is a generated paste identifier.
type ID string

func (id ID) String() string { return string(id) }

// Generator draws fixed-length ids from an alphabet.
// It is safe for concurrent use.
type Generator struct {
	Alphabet string
	Length   int

	// generate defaults to nanoid.Generate, which reads crypto/rand.
	generate func(alphabet string, size int) (string, error)
}

// NewGenerator returns a Generator over Alphabet. A non-positive length falls back to DefaultLength.
func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{Alphabet: Alphabet, Length: length, generate: nanoid.Generate}
}

// Next returns a fresh id. No uniqueness check is done here.
func (g *Generator) Next() (ID, error) {
	gen := g.generate
	if gen == nil {
		gen = nanoid.Generate
	}
	s, err := gen(g.Alphabet, g.Length)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return ID(s), nil
}

// Valid reports whether s has the given length and only uses Alphabet characters.
func Valid(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(Alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}

// New draws a single id of the given length.
func New(length int) (ID, error) {
	return NewGenerator(length).Next()
}
