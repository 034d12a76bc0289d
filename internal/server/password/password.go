// Package password hashes and verifies user passwords. Hashes are
// self-describing so stored values made by one algorithm keep verifying after
// the configured algorithm changes.
package password

import (
	"fmt"
	"strings"
)

// Hasher hashes plaintext passwords and verifies them against stored hashes.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Multi hashes with the primary hasher and verifies any supported hash.
type Multi struct {
	bcrypt    *BcryptHasher
	argon2    *Argon2Hasher
	algorithm string
}

// NewMulti builds a Multi hashing with algorithm. bcryptCost applies to bcrypt
// hashing and to NeedsRehash decisions.
func NewMulti(algorithm string, bcryptCost int) (*Multi, error) {
	b, err := NewBcryptHasher(bcryptCost)
	if err != nil {
		return nil, err
	}
	a := NewArgon2Hasher(DefaultArgon2Params)

	switch algorithm {
	case "", AlgorithmBcrypt:
		algorithm = AlgorithmBcrypt
	case AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", algorithm)
	}

	return &Multi{algorithm: algorithm, bcrypt: b, argon2: a}, nil
}

func (m *Multi) Algorithm() string { return m.algorithm }

func (m *Multi) Hash(plain string) (string, error) {
	if m.algorithm == AlgorithmArgon2id {
		return m.argon2.Hash(plain)
	}
	return m.bcrypt.Hash(plain)
}

func (m *Multi) Verify(plain, hash string) bool {
	switch {
	case isBcrypt(hash):
		return m.bcrypt.Verify(plain, hash)
	case isArgon2id(hash):
		return m.argon2.Verify(plain, hash)
	default:
		return false
	}
}

// NeedsRehash reports whether hash was produced by another algorithm or with
// weaker parameters than the current configuration.
func (m *Multi) NeedsRehash(hash string) bool {
	switch m.algorithm {
	case AlgorithmArgon2id:
		if !isArgon2id(hash) {
			return true
		}
		return m.argon2.NeedsRehash(hash)
	default:
		if !isBcrypt(hash) {
			return true
		}
		return m.bcrypt.NeedsRehash(hash)
	}
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func isArgon2id(hash string) bool {
	return strings.HasPrefix(hash, "$argon2id$")
}
