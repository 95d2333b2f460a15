package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// storedHash is one of the two encodings an account password can be stored in.
// The set is closed: legacyDigest and adaptiveHash are its only members.
type storedHash interface {
	matches(password string) bool
	stale(cost int) bool
}

// legacyDigest is an unsalted hex SHA-256 digest written by earlier releases.
type legacyDigest struct {
	sum []byte
}

func (d legacyDigest) matches(password string) bool {
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(got[:], d.sum) == 1
}

func (legacyDigest) stale(int) bool { return true }

// adaptiveHash is a bcrypt hash ($2a$, $2b$ or $2y$).
type adaptiveHash struct {
	encoded []byte
}

func (h adaptiveHash) matches(password string) bool {
	return bcrypt.CompareHashAndPassword(h.encoded, []byte(password)) == nil
}

func (h adaptiveHash) stale(cost int) bool {
	current, err := bcrypt.Cost(h.encoded)
	return err != nil || current < cost
}

// parseStoredHash infers the encoding from the stored value's shape alone.
// ok is false for empty or unrecognized values.
func parseStoredHash(stored string) (storedHash, bool) {
	stored = strings.TrimSpace(stored)
	switch {
	case stored == "":
		return nil, false
	case isBcryptPrefix(stored):
		return adaptiveHash{encoded: []byte(stored)}, true
	case len(stored) == sha256.Size*2:
		sum, err := hex.DecodeString(stored)
		if err != nil {
			return nil, false
		}
		return legacyDigest{sum: sum}, true
	default:
		return nil, false
	}
}

func isBcryptPrefix(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// PasswordHasher hashes new passwords with bcrypt and verifies stored values
// in either the bcrypt or the legacy SHA-256 encoding.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a hasher with default fallback cost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify never errors: malformed or empty stored values simply do not match.
func (h *PasswordHasher) Verify(password, stored string) bool {
	parsed, ok := parseStoredHash(stored)
	if !ok {
		return false
	}
	return parsed.matches(password)
}

// NeedsRehash reports whether a stored value should be replaced by a fresh
// bcrypt hash after the next successful verification.
func (h *PasswordHasher) NeedsRehash(stored string) bool {
	parsed, ok := parseStoredHash(stored)
	if !ok {
		return false
	}
	return parsed.stale(h.cost)
}
