// Package digest produces and verifies one-way salted digests of
// passwords and tokens.
package digest

import (
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes secrets with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

// New returns a digester. minCost selects bcrypt.MinCost, which is
// meant for tests; production uses bcrypt.DefaultCost.
func New(minCost bool) *Bcrypt {
	cost := bcrypt.DefaultCost
	if minCost {
		cost = bcrypt.MinCost
	}
	return &Bcrypt{cost: cost}
}

// Cost returns the work factor used for new digests.
func (b *Bcrypt) Cost() int {
	return b.cost
}

// Digest returns a salted digest of secret. Two digests of the same
// secret differ. Fails for secrets longer than 72 bytes.
func (b *Bcrypt) Digest(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify reports whether candidate matches digest. An empty or malformed
// digest never matches.
func (b *Bcrypt) Verify(digest, candidate string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate)) == nil
}
