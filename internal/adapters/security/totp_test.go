package security

import (
	"encoding/base32"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPRFC6238Vectors(t *testing.T) {
	t.Parallel()

	totp := NewTOTP("Acme")
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("12345678901234567890"))
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}
	for _, tc := range cases {
		step, ok := totp.Verify(secret, tc.code, time.Unix(tc.ts, 0))
		assert.True(t, ok, "t=%d", tc.ts)
		assert.Equal(t, tc.ts/30, step, "t=%d", tc.ts)
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	t.Parallel()

	totp := NewTOTP("Acme")
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("12345678901234567890"))
	at := time.Unix(1111111109, 0)

	accepts := func(code string, now time.Time) bool {
		_, ok := totp.Verify(secret, code, now)
		return ok
	}
	assert.True(t, accepts("081804", at.Add(30*time.Second)))
	assert.True(t, accepts("081804", at.Add(-30*time.Second)))
	assert.False(t, accepts("081804", at.Add(90*time.Second)))
	assert.False(t, accepts("08180", at))
	assert.False(t, accepts("08180a", at))
	_, ok := totp.Verify("!!!", "081804", at)
	assert.False(t, ok)
	assert.False(t, accepts("081804", time.Time{}))
}

func TestTOTPVerifyReportsMatchedStep(t *testing.T) {
	t.Parallel()

	totp := NewTOTP("Acme")
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("12345678901234567890"))
	at := time.Unix(1111111109, 0)

	// The code belongs to step 37037036 no matter which neighbouring step
	// the verifier's clock is in.
	for _, skew := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		step, ok := totp.Verify(secret, "081804", at.Add(skew))
		require.True(t, ok)
		assert.Equal(t, int64(37037036), step)
	}
	step, ok := totp.Verify(secret, "000000", at)
	assert.False(t, ok)
	assert.Zero(t, step)
}

func TestTOTPSecretAndProvisioningURI(t *testing.T) {
	t.Parallel()

	totp := NewTOTP("Acme")
	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
	assert.NotContains(t, secret, "=")

	uri, err := url.Parse(totp.ProvisioningURI(secret, "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "otpauth", uri.Scheme)
	assert.Equal(t, "totp", uri.Host)
	assert.True(t, strings.HasPrefix(uri.Path, "/Acme:a@example.com"))
	assert.Equal(t, secret, uri.Query().Get("secret"))
	assert.Equal(t, "Acme", uri.Query().Get("issuer"))
	assert.Equal(t, "6", uri.Query().Get("digits"))
	assert.Equal(t, "30", uri.Query().Get("period"))
}
