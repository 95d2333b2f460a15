package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30
	totpSkew        = 1
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTP implements RFC 6238 codes (HMAC-SHA1, 6 digits, 30 second step)
// accepting one step of clock drift either way.
type TOTP struct {
	issuer string
}

func NewTOTP(issuer string) *TOTP {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = "identity-core"
	}
	return &TOTP{issuer: issuer}
}

// GenerateSecret returns a fresh base32 secret without padding.
func (t *TOTP) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

func (t *TOTP) ProvisioningURI(secret, account string) string {
	label := url.PathEscape(t.issuer + ":" + account)
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", t.issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", strconv.Itoa(totpDigits))
	v.Set("period", strconv.Itoa(totpPeriod))
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks code against the steps around now and returns the matched
// time step. Callers must reject a step that was already accepted.
func (t *TOTP) Verify(secret, code string, now time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits || !isDigits(code) {
		return 0, false
	}
	key, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "=")))
	if err != nil || len(key) == 0 {
		return 0, false
	}

	base := now.Unix() / totpPeriod
	matched := 0
	var matchedStep int64
	for step := int64(-totpSkew); step <= totpSkew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		eq := subtle.ConstantTimeCompare([]byte(hotp(key, counter)), []byte(code))
		if eq == 1 && matched == 0 {
			matchedStep = counter
		}
		matched |= eq
	}
	return matchedStep, matched == 1
}

func hotp(key []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", totpDigits, bin%1_000_000)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
