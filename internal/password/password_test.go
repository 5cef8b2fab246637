package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHasherRejectsWeakCost(t *testing.T) {
	_, err := NewHasher(10)
	require.Error(t, err)

	_, err = NewHasher(40)
	require.Error(t, err)
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h, err := NewHasher(MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("Sup3r$ecret")
	require.NoError(t, err)
	require.NotEqual(t, "Sup3r$ecret", hash)

	require.True(t, h.Verify("Sup3r$ecret", hash))
	require.False(t, h.Verify("Sup3r$ecret2", hash))
	require.False(t, h.Verify("Sup3r$ecret", "not-a-bcrypt-hash"))
}

func TestHashesAreSalted(t *testing.T) {
	h, err := NewHasher(MinCost)
	require.NoError(t, err)

	a, err := h.Hash("Sup3r$ecret")
	require.NoError(t, err)
	b, err := h.Hash("Sup3r$ecret")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestPolicyViolations(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     []string
	}{
		{"acceptable", "Aa1!aaaa", nil},
		{"missing special only", "Aa1aaaaa", []string{RuleSpecial}},
		{"missing digit only", "Aa!aaaaa", []string{RuleDigit}},
		{"missing upper only", "aa1!aaaa", []string{RuleUppercase}},
		{"missing lower only", "AA1!AAAA", []string{RuleLowercase}},
		{"too short but all classes", "Aa1!", []string{RuleMinLength}},
		{"empty", "", []string{RuleMinLength, RuleUppercase, RuleLowercase, RuleDigit, RuleSpecial}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, PolicyViolations(tt.password))
		})
	}
}
