package password

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnrecognizedHash = errors.New("hash format not recognized")
	ErrMalformedHash    = errors.New("malformed hash")
)

type ViolationKind int

const (
	TooShort ViolationKind = iota + 1
	MissingComplexity
	SameAsCurrent
)

// PolicyViolation describes why a password was rejected. It is safe to show
// to the end user.
type PolicyViolation struct {
	Kind      ViolationKind
	MinLength int
	Missing   []string // character classes that are absent, for MissingComplexity
}

func (e *PolicyViolation) Error() string {
	switch e.Kind {
	case TooShort:
		return fmt.Sprintf("password must be at least %d characters", e.MinLength)
	case MissingComplexity:
		return fmt.Sprintf("password must contain %s", strings.Join(e.Missing, ", "))
	case SameAsCurrent:
		return "new password must differ from the current one"
	default:
		return "password does not meet the policy"
	}
}
