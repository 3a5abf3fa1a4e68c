package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	argon2SHA256Prefix = "argon2_sha256$"
	pbkdf2Prefix       = "pbkdf2$"
	pbkdf2Iterations   = 100000
	pbkdf2KeyLength    = 32
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Argon2SHA256 verifies argon2id hashes computed over the hex sha256 digest
// of the password. These come from the bulk migration of sha256 accounts.
type Argon2SHA256 struct{}

func (Argon2SHA256) Scheme() Scheme {
	return SchemeArgon2SHA256
}

func (Argon2SHA256) Verify(password string, stored string) (bool, error) {
	if !strings.HasPrefix(stored, argon2SHA256Prefix) {
		return false, ErrUnrecognizedHash
	}
	inner := strings.TrimPrefix(stored, argon2SHA256Prefix)
	// some migrated rows carry a redundant argon2$ marker
	inner = strings.TrimPrefix(inner, legacyArgon2Prefix)
	return verifyPHC([]byte(sha256Hex(password)), inner)
}

type Bcrypt struct{}

func (Bcrypt) Scheme() Scheme {
	return SchemeBcrypt
}

func (Bcrypt) Verify(password string, stored string) (bool, error) {
	if !strings.HasPrefix(stored, "$2a$") && !strings.HasPrefix(stored, "$2b$") && !strings.HasPrefix(stored, "$2y$") {
		return false, ErrUnrecognizedHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PBKDF2 verifies "pbkdf2$<salt>:<hex>" hashes, pbkdf2-hmac-sha256 with
// 100000 iterations over the salt string bytes. The prefix is optional: older
// rows store the bare "<salt>:<hex>" payload.
type PBKDF2 struct{}

func (PBKDF2) Scheme() Scheme {
	return SchemePBKDF2
}

func (PBKDF2) Verify(password string, stored string) (bool, error) {
	prefixed := strings.HasPrefix(stored, pbkdf2Prefix)
	if !prefixed && strings.HasPrefix(stored, "$") {
		return false, ErrUnrecognizedHash
	}
	salt, digest, ok := strings.Cut(strings.TrimPrefix(stored, pbkdf2Prefix), ":")
	if !prefixed && (!ok || len(digest) != pbkdf2KeyLength*2) {
		return false, ErrUnrecognizedHash
	}
	if !ok || salt == "" {
		return false, ErrMalformedHash
	}
	expected, err := hex.DecodeString(digest)
	if err != nil || len(expected) != pbkdf2KeyLength {
		return false, ErrMalformedHash
	}
	computed := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// SHA256 verifies bare unsalted sha256 hex digests.
type SHA256 struct{}

func (SHA256) Scheme() Scheme {
	return SchemeSHA256
}

func (SHA256) Verify(password string, stored string) (bool, error) {
	if len(stored) != sha256.Size*2 {
		return false, ErrUnrecognizedHash
	}
	if _, err := hex.DecodeString(stored); err != nil {
		return false, ErrUnrecognizedHash
	}
	computed := sha256Hex(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(stored))) == 1, nil
}
