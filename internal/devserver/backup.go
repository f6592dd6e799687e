package devserver

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

const (
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	backupCodeLength   = 10
)

// newBackupCodes returns n display codes formatted XXXXX-XXXXX.
func newBackupCodes(n int) ([]string, error) {
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var b strings.Builder
		b.Grow(backupCodeLength + 1)
		for j := 0; j < backupCodeLength; j++ {
			if j == backupCodeLength/2 {
				b.WriteByte('-')
			}
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			b.WriteByte(backupCodeAlphabet[idx.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// backupCodeHash canonicalises a user-typed code before hashing so spacing,
// dashes and case do not matter.
func backupCodeHash(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
