// Package auth issues and verifies HMAC-signed session tokens for the
// retrieval API. Credential checking itself happens against the mailbox
// store; this package only vouches that a token was issued by this process
// and has not expired.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cookieName = "openmail_session"

type Manager struct {
	secret []byte
	maxAge time.Duration
}

// New builds a manager around the given secret. An empty secret gets a
// random one, which invalidates sessions on restart.
func New(secret string, maxAge time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(generated)
	}
	return &Manager{secret: []byte(secret), maxAge: maxAge}, nil
}

func (m *Manager) CookieName() string {
	return cookieName
}

func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue creates a signed token binding the account email to the issue time.
func (m *Manager) Issue(email string, now time.Time) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("email is required")
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)
	payload := email + "|" + timestamp
	token := payload + "|" + m.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// Parse verifies the signature and expiry and returns the token's email.
func (m *Manager) Parse(token string, now time.Time) (string, error) {
	if token == "" {
		return "", errors.New("missing session token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errors.New("invalid session token")
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", errors.New("invalid session token")
	}
	payload := parts[0] + "|" + parts[1]
	if !m.verify(payload, parts[2]) {
		return "", errors.New("invalid session token")
	}
	timestamp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", errors.New("invalid session token")
	}
	if now.Sub(time.Unix(timestamp, 0)) > m.maxAge {
		return "", errors.New("session expired")
	}
	return parts[0], nil
}

func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(payload, signature string) bool {
	expected := m.sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
