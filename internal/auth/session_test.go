package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	m, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Now()
	token, err := m.Issue("Dev@openmail.org", now)
	require.NoError(t, err)

	email, err := m.Parse(token, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "dev@openmail.org", email)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Now()
	token, err := m.Issue("dev@openmail.org", now)
	require.NoError(t, err)

	_, err = m.Parse(token, now.Add(2*time.Hour))
	require.Error(t, err)
}

func TestParseRejectsTamperedToken(t *testing.T) {
	m, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	other, err := New("other-secret", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue("dev@openmail.org", time.Now())
	require.NoError(t, err)

	_, err = m.Parse(token, time.Now())
	require.Error(t, err)
}

func TestIssueRequiresEmail(t *testing.T) {
	m, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = m.Issue("  ", time.Now())
	require.Error(t, err)
}

func TestEmptySecretGenerated(t *testing.T) {
	m, err := New("", time.Hour)
	require.NoError(t, err)

	token, err := m.Issue("dev@openmail.org", time.Now())
	require.NoError(t, err)
	_, err = m.Parse(token, time.Now())
	require.NoError(t, err)
}
