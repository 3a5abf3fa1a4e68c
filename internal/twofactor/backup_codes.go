package twofactor

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/khanghh/kguard/internal/common"
)

const backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateBackupCodes(count int, length int) ([]string, error) {
	codes := make([]string, 0, count)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for len(codes) < count {
		buf := make([]byte, length)
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			buf[i] = backupCodeAlphabet[n.Int64()]
		}
		codes = append(codes, string(buf))
	}
	return codes, nil
}

// canonicalBackupCode upper-cases the code and drops separators users tend
// to type.
func canonicalBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

func backupCodeDigest(masterKey string, code string) string {
	return common.CalculateHash(masterKey, "backup-code", canonicalBackupCode(code))
}

func digestBackupCodes(masterKey string, codes []string) []string {
	digests := make([]string, len(codes))
	for i, code := range codes {
		digests[i] = backupCodeDigest(masterKey, code)
	}
	return digests
}

// indexOfDigest scans all stored digests without stopping early.
func indexOfDigest(digests []string, digest string) int {
	found := -1
	for i, d := range digests {
		if common.SecureCompare(d, digest) && found < 0 {
			found = i
		}
	}
	return found
}
