package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "acme.com", ExtractDomain("jane@acme.com"))
	assert.Equal(t, "", ExtractDomain("not-an-email"))
	assert.Equal(t, "", ExtractDomain("two@signs@here"))
}

// Only the offline branches; MX lookups are covered by integration use.
func TestVerifyContactabilityOfflineChecks(t *testing.T) {
	cases := []struct {
		name   string
		email  string
		detail string
	}{
		{"malformed address", "not-an-email", "invalid email format"},
		{"common typo", "jane@gmai.com", "possible typo"},
		{"disposable domain", "jane@mailinator.com", "disposable email domain"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := VerifyContactability(tc.email)
			assert.False(t, verdict.Contactable)
			assert.Contains(t, verdict.Detail, tc.detail)
		})
	}
}

func TestIsFreeEmailProvider(t *testing.T) {
	assert.True(t, isFreeEmailProvider("gmail.com"))
	assert.False(t, isFreeEmailProvider("acme.com"))
}
