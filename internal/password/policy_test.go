package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		password string
		kind     ViolationKind
	}{
		{"too short", "Ab1!", TooShort},
		{"seven chars", "Abcde1!", TooShort},
		{"no upper", "abcdef1!", MissingComplexity},
		{"no lower", "ABCDEF1!", MissingComplexity},
		{"no digit", "Abcdefg!", MissingComplexity},
		{"no special", "Abcdefg1", MissingComplexity},
		{"special outside set", "Abcdefg1?", MissingComplexity},
		{"valid", "Abcdef1!", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.password)
			if tt.kind == 0 {
				require.NoError(t, err)
				return
			}
			var violation *PolicyViolation
			require.True(t, errors.As(err, &violation))
			require.Equal(t, tt.kind, violation.Kind)
		})
	}
}

func TestValidateReportsMissingClasses(t *testing.T) {
	err := Validate("abcdefgh")
	var violation *PolicyViolation
	require.ErrorAs(t, err, &violation)
	require.Len(t, violation.Missing, 3)
	require.Contains(t, violation.Error(), "uppercase")
}

func TestPolicyMinLengthFloor(t *testing.T) {
	p := NewPolicy(4)
	require.Equal(t, 8, p.MinLength)

	p = NewPolicy(12)
	err := p.Validate("Abcdef1!")
	var violation *PolicyViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, TooShort, violation.Kind)
	require.Equal(t, 12, violation.MinLength)
}

func TestGenerateTemporary(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		pw, err := GenerateTemporary(12)
		require.NoError(t, err)
		require.Len(t, pw, 12)
		require.NoError(t, Validate(pw))
		seen[pw] = struct{}{}
	}
	require.Greater(t, len(seen), 190)
}

func TestGenerateTemporaryRaisesShortLength(t *testing.T) {
	pw, err := GenerateTemporary(3)
	require.NoError(t, err)
	require.Len(t, pw, 8)
	require.NoError(t, Validate(pw))
	require.True(t, strings.ContainsAny(pw, SpecialCharacters))
}
