package twofactor

import (
	"strings"
	"time"

	"github.com/khanghh/kguard/internal/common"
	"github.com/khanghh/kguard/params"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    params.TOTPPeriod,
		Skew:      params.TOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func normalizeCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}

// VerifyTOTP checks a 6 digit code against the secret, accepting one time
// step of drift in either direction.
func VerifyTOTP(secret string, code string, at time.Time) bool {
	code = normalizeCode(code)
	if len(code) != int(otp.DigitsSix) || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), validateOpts())
	return err == nil && ok
}

// matchStep returns the time step the code was generated for.
func matchStep(secret string, code string, at time.Time) (int64, bool) {
	code = normalizeCode(code)
	if len(code) != int(otp.DigitsSix) || secret == "" {
		return 0, false
	}
	opts := validateOpts()
	current := at.Unix() / int64(params.TOTPPeriod)
	matched, found := int64(0), false
	for offset := -int64(params.TOTPSkew); offset <= int64(params.TOTPSkew); offset++ {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*int64(params.TOTPPeriod), 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if common.SecureCompare(expected, code) {
			matched, found = step, true
		}
	}
	return matched, found
}
