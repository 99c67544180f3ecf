// Package token generates random URL-safe tokens.
package token

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Length of generated tokens. The alphabet has 64 symbols, so a token
// carries 6 bits per character.
const Length = 32

// New returns a fresh random token drawn from [A-Za-z0-9_-].
func New() (string, error) {
	return gonanoid.New(Length)
}
