package devserver

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func newTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

// provisionURI builds the otpauth:// URI authenticator apps import.
func provisionURI(issuer, account, secret string) string {
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", fmt.Sprint(totpPeriod))
	v.Set("digits", fmt.Sprint(totpDigits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// TOTPCode returns the RFC 6238 code for secret at t. Tests and the dev CLI
// use it to stand in for an authenticator app.
func TOTPCode(secret string, t time.Time) (string, error) {
	raw, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(raw, t.Unix()/totpPeriod), nil
}

// verifyTOTP checks code within ±skew periods and returns the matching
// counter so the caller can reject replays.
func verifyTOTP(secret, code string, now time.Time, skew int) (bool, int64, error) {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits || !isDigits(code) {
		return false, 0, nil
	}
	raw, err := decodeTOTPSecret(secret)
	if err != nil {
		return false, 0, err
	}

	base := now.Unix() / totpPeriod
	for step := -skew; step <= skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(raw, counter)), []byte(code)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	raw, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil || len(raw) == 0 {
		return nil, errors.New("devserver: invalid totp secret")
	}
	return raw, nil
}

func hotp(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%0*d", totpDigits, bin%1000000)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
