package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func legacyHex(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func TestPasswordHasherVerifiesBothEncodings(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	adaptive, err := h.Hash("correct horse")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(adaptive, "$2"))

	cases := []struct {
		name     string
		password string
		stored   string
		want     bool
	}{
		{name: "adaptive match", password: "correct horse", stored: adaptive, want: true},
		{name: "adaptive mismatch", password: "wrong horse", stored: adaptive, want: false},
		{name: "legacy match", password: "hunter22", stored: legacyHex("hunter22"), want: true},
		{name: "legacy upper hex", password: "hunter22", stored: strings.ToUpper(legacyHex("hunter22")), want: true},
		{name: "legacy mismatch", password: "hunter23", stored: legacyHex("hunter22"), want: false},
		{name: "empty stored", password: "hunter22", stored: "", want: false},
		{name: "garbage", password: "hunter22", stored: "not-a-hash", want: false},
		{name: "hex wrong length", password: "hunter22", stored: legacyHex("hunter22")[:40], want: false},
		{name: "non hex of digest length", password: "hunter22", stored: strings.Repeat("z", 64), want: false},
		{name: "truncated bcrypt", password: "correct horse", stored: adaptive[:20], want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, h.Verify(tc.password, tc.stored))
		})
	}
}

func TestPasswordHasherHashAlwaysAdaptive(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	first, err := h.Hash("same password")
	require.NoError(t, err)
	second, err := h.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	_, isAdaptive := mustParse(t, first).(adaptiveHash)
	assert.True(t, isAdaptive)
}

func TestPasswordHasherNeedsRehash(t *testing.T) {
	t.Parallel()

	low := NewPasswordHasher(bcrypt.MinCost)
	lowHash, err := low.Hash("pw-12345678")
	require.NoError(t, err)

	assert.True(t, low.NeedsRehash(legacyHex("pw-12345678")))
	assert.False(t, low.NeedsRehash(lowHash))
	assert.True(t, NewPasswordHasher(bcrypt.MinCost+1).NeedsRehash(lowHash))
	assert.False(t, low.NeedsRehash(""))
}

func mustParse(t *testing.T, stored string) storedHash {
	t.Helper()
	parsed, ok := parseStoredHash(stored)
	require.True(t, ok)
	return parsed
}
