package password

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/khanghh/kguard/params"
)

const (
	lowercaseLetters  = "abcdefghijklmnopqrstuvwxyz"
	uppercaseLetters  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitCharacters   = "0123456789"
	SpecialCharacters = "!@#$%^&*"
)

// Policy holds the password strength rules.
type Policy struct {
	MinLength int
}

func DefaultPolicy() Policy {
	return Policy{MinLength: params.PasswordMinLength}
}

func NewPolicy(minLength int) Policy {
	if minLength < params.PasswordMinLength {
		minLength = params.PasswordMinLength
	}
	return Policy{MinLength: minLength}
}

// Validate returns a *PolicyViolation when pw is too short or lacks one of
// the required character classes.
func (p Policy) Validate(pw string) error {
	minLength := p.MinLength
	if minLength < params.PasswordMinLength {
		minLength = params.PasswordMinLength
	}
	if utf8.RuneCountInString(pw) < minLength {
		return &PolicyViolation{Kind: TooShort, MinLength: minLength}
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "an uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "a lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "a digit")
	}
	if !hasSpecial {
		missing = append(missing, "one of "+SpecialCharacters)
	}
	if len(missing) > 0 {
		return &PolicyViolation{Kind: MissingComplexity, MinLength: minLength, Missing: missing}
	}
	return nil
}

func Validate(pw string) error {
	return DefaultPolicy().Validate(pw)
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

// GenerateTemporary builds a random password that always satisfies the
// default policy. All randomness comes from crypto/rand.
func GenerateTemporary(length int) (string, error) {
	if length < params.PasswordMinLength {
		length = params.PasswordMinLength
	}

	classes := []string{uppercaseLetters, lowercaseLetters, digitCharacters, SpecialCharacters}
	alphabet := strings.Join(classes, "")

	buf := make([]byte, 0, length)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	for i := len(buf) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}
