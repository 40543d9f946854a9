package mailparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleMessage(t *testing.T) {
	raw := "From: \"Alice\" <a@b.com>\r\n" +
		"To: dev@openmail.org\r\n" +
		"Subject: Test\r\n" +
		"\r\n" +
		"Hello http://example.org/verify?token=xyz"

	email := Parse(raw)
	require.Equal(t, "Alice", email.From.Name)
	require.Equal(t, "a@b.com", email.From.Address)
	require.Equal(t, []string{"dev@openmail.org"}, email.To)
	require.Equal(t, "Test", email.Subject)
	require.Equal(t, "Hello http://example.org/verify?token=xyz", email.Text)
	require.Empty(t, email.HTML)
	require.Empty(t, email.Attachments)
}

func TestParseHeaderFolding(t *testing.T) {
	email := Parse("Subject: Hello\r\n World\r\n\r\nbody")
	require.Equal(t, "Hello World", email.Headers["subject"])
}

func TestParseHeaderNamesLowercased(t *testing.T) {
	email := Parse("X-Custom-Header: value\r\n\r\n")
	require.Equal(t, "value", email.Headers["x-custom-header"])
}

func TestParseDuplicateHeaderOverwrites(t *testing.T) {
	email := Parse("Received: first\r\nReceived: second\r\n\r\n")
	require.Equal(t, "second", email.Headers["received"])
}

func TestParseMultipart(t *testing.T) {
	raw := "From: a@b.com\r\n" +
		"Content-Type: multipart/alternative; boundary=\"sep\"\r\n" +
		"\r\n" +
		"--sep\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain body\r\n" +
		"--sep\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html body</p>\r\n" +
		"--sep--\r\n"

	email := Parse(raw)
	require.Equal(t, "plain body", email.Text)
	require.Equal(t, "<p>html body</p>", email.HTML)
}

func TestParseMultipartKeepsFirstSections(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=sep\r\n" +
		"\r\n" +
		"--sep\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"first\r\n" +
		"--sep\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"second\r\n" +
		"--sep--\r\n"

	email := Parse(raw)
	require.Equal(t, "first", email.Text)
}

func TestParseFromVariants(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		wantName    string
		wantAddress string
	}{
		{"quoted display name", `"Alice Smith" <alice@example.com>`, "Alice Smith", "alice@example.com"},
		{"unquoted display name", `Bob <bob@example.com>`, "Bob", "bob@example.com"},
		{"bare address", `carol@example.com`, "", "carol@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := Parse("From: " + tt.header + "\r\n\r\n")
			require.Equal(t, tt.wantName, email.From.Name)
			require.Equal(t, tt.wantAddress, email.From.Address)
		})
	}
}

func TestParseToList(t *testing.T) {
	email := Parse("To: \"A\" <a@x.com>, b@y.com\r\n\r\n")
	require.Equal(t, []string{"a@x.com", "b@y.com"}, email.To)
}

func TestParseEmptyInput(t *testing.T) {
	email := Parse("")
	require.Equal(t, Address{}, email.From)
	require.Empty(t, email.To)
	require.Empty(t, email.Subject)
	require.Empty(t, email.Text)
	require.Empty(t, email.HTML)
	require.NotNil(t, email.Headers)
	require.Empty(t, email.Headers)
	require.Empty(t, email.Attachments)
}

func TestParseBodyWithoutHeaders(t *testing.T) {
	email := Parse("\r\njust a body line")
	require.Equal(t, "just a body line", email.Text)
}
