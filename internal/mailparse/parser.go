// Package mailparse turns raw SMTP message data into a structured record and
// picks actionable links out of message bodies. Parsing is best effort: it
// always returns a usable record, falling back to the zero value rather than
// reporting an error, so delivery never stalls on a malformed message.
//
// Known simplification: a repeated header name overwrites the previous value
// instead of accumulating. Downstream consumers only ever want the last one.
package mailparse

import (
	"regexp"
	"strings"
)

type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"-"`
}

// Email is the structured form of one raw message. HTML is empty when the
// message carried no HTML part.
type Email struct {
	From        Address           `json:"from"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text"`
	HTML        string            `json:"html"`
	Headers     map[string]string `json:"headers"`
	Attachments []Attachment      `json:"attachments"`
}

var (
	headerLineRe = regexp.MustCompile(`^([^:]+):\s*(.*)$`)
	boundaryRe   = regexp.MustCompile(`(?i)boundary="?([^";\r\n]+)"?`)
	addressRe    = regexp.MustCompile(`"?([^"<]+)"?\s*<?([^>]*)>?`)
)

// Parse extracts headers, body sections, and envelope-ish addresses from raw
// message text. It never fails; anything it cannot make sense of is simply
// absent from the result.
func Parse(raw string) Email {
	email := zeroEmail()

	lines := splitLines(raw)
	headers, bodyStart := parseHeaders(lines)
	email.Headers = headers
	email.Subject = headers["subject"]

	boundary := ""
	if m := boundaryRe.FindStringSubmatch(headers["content-type"]); m != nil {
		boundary = m[1]
	}

	if boundary != "" {
		text, html := splitMultipart(raw, boundary)
		email.Text = strings.TrimSpace(text)
		email.HTML = strings.TrimSpace(html)
	} else if bodyStart < len(lines) {
		email.Text = strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
	}

	email.From = parseFrom(headers["from"])
	email.To = parseTo(headers["to"])
	return email
}

func zeroEmail() Email {
	return Email{
		To:          []string{},
		Headers:     map[string]string{},
		Attachments: []Attachment{},
	}
}

func splitLines(raw string) []string {
	return strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
}

// parseHeaders consumes lines up to the first blank one. A line starting
// with whitespace continues the previous header's value.
func parseHeaders(lines []string) (map[string]string, int) {
	headers := map[string]string{}
	lastName := ""

	i := 0
	for ; i < len(lines) && lines[i] != ""; i++ {
		line := lines[i]
		if line[0] == ' ' || line[0] == '\t' {
			if lastName != "" {
				headers[lastName] += " " + strings.TrimSpace(line)
			}
			continue
		}
		if m := headerLineRe.FindStringSubmatch(line); m != nil {
			lastName = strings.ToLower(strings.TrimSpace(m[1]))
			headers[lastName] = strings.TrimSpace(m[2])
		}
	}
	// Skip the blank separator itself.
	return headers, i + 1
}

// splitMultipart cuts the raw text on --boundary markers and keeps the first
// text/plain and first text/html sections it finds. Each part's body is
// whatever follows that part's own blank header separator. Attachments are
// deliberately not materialized.
func splitMultipart(raw, boundary string) (text, html string) {
	for _, part := range strings.Split(raw, "--"+boundary) {
		switch {
		case text == "" && strings.Contains(part, "Content-Type: text/plain"):
			text = partBody(part)
		case html == "" && strings.Contains(part, "Content-Type: text/html"):
			html = partBody(part)
		}
	}
	return text, html
}

func partBody(part string) string {
	normalized := strings.ReplaceAll(part, "\r\n", "\n")
	sections := strings.SplitN(normalized, "\n\n", 2)
	if len(sections) < 2 {
		return ""
	}
	return sections[1]
}

// parseFrom understands `"Display Name" <addr>` as well as bare addresses.
// Without a bracketed address the whole header value becomes the address and
// the name stays empty.
func parseFrom(value string) Address {
	if value == "" {
		return Address{}
	}
	m := addressRe.FindStringSubmatch(value)
	if m == nil {
		return Address{Address: value}
	}
	name := strings.TrimSpace(m[1])
	address := strings.TrimSpace(m[2])
	if address == "" {
		address = name
		name = ""
	}
	return Address{Name: name, Address: address}
}

func parseTo(value string) []string {
	to := []string{}
	if value == "" {
		return to
	}
	for _, entry := range strings.Split(value, ",") {
		m := addressRe.FindStringSubmatch(entry)
		if m != nil && strings.TrimSpace(m[2]) != "" {
			to = append(to, strings.TrimSpace(m[2]))
		} else {
			to = append(to, strings.TrimSpace(entry))
		}
	}
	return to
}
