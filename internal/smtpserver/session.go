package smtpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.io/infrasutra/openmail/internal/mailparse"
	"github.io/infrasutra/openmail/internal/metrics"
	"github.io/infrasutra/openmail/internal/sse"
	"github.io/infrasutra/openmail/internal/store"
)

type connState int

const (
	stateReady connState = iota
	stateData
	stateClosed
)

var (
	crlf       = []byte("\r\n")
	terminator = []byte("\r\n.\r\n")
)

// session is the per-connection protocol state machine. It is fed raw byte
// chunks exactly as they arrive off the socket and writes replies to out,
// which keeps command dispatch testable without a real connection.
type session struct {
	store  *store.Store
	hub    *sse.Hub
	logger *slog.Logger
	domain string
	out    io.Writer

	state    connState
	buf      []byte // pending bytes not yet consumed as command lines
	dataBuf  []byte // accumulated message bytes while in stateData
	mailFrom string
	rcptTo   string
}

func newSession(st *store.Store, hub *sse.Hub, logger *slog.Logger, domain string, out io.Writer) *session {
	return &session{store: st, hub: hub, logger: logger, domain: domain, out: out}
}

func (s *session) greet() {
	s.reply("220 " + s.domain + " SMTP Service ready")
}

func (s *session) closed() bool {
	return s.state == stateClosed
}

// feed appends one chunk of socket data and advances the state machine as
// far as the accumulated bytes allow. Chunks carry no alignment guarantee;
// a command line or the data terminator may arrive split across any number
// of reads.
func (s *session) feed(chunk []byte) {
	s.buf = append(s.buf, chunk...)
	for s.state != stateClosed {
		switch s.state {
		case stateReady:
			idx := bytes.Index(s.buf, crlf)
			if idx < 0 {
				return
			}
			line := string(s.buf[:idx])
			s.buf = s.buf[idx+len(crlf):]
			s.handleCommand(line)
		case stateData:
			s.dataBuf = append(s.dataBuf, s.buf...)
			s.buf = nil
			raw, rest, ok := cutTerminator(s.dataBuf)
			if !ok {
				return
			}
			s.dataBuf = nil
			s.buf = rest
			s.finishData(raw)
		}
	}
}

// cutTerminator locates the end-of-data line in the accumulated buffer. It
// scans the whole buffer rather than testing the latest suffix, so a
// terminator split across reads is still found. A terminator as the very
// first line means an empty message.
func cutTerminator(buf []byte) (raw, rest []byte, ok bool) {
	if bytes.HasPrefix(buf, []byte(".\r\n")) {
		return nil, buf[3:], true
	}
	idx := bytes.Index(buf, terminator)
	if idx < 0 {
		return nil, nil, false
	}
	return buf[:idx], buf[idx+len(terminator):], true
}

func (s *session) handleCommand(line string) {
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "HELO"), strings.HasPrefix(upper, "EHLO"):
		s.reply("250 " + s.domain)
	case strings.HasPrefix(upper, "MAIL FROM:"):
		s.mailFrom = strings.TrimSpace(line[len("MAIL FROM:"):])
		s.reply("250 OK")
	case strings.HasPrefix(upper, "RCPT TO:"):
		s.rcptTo = stripAngles(strings.TrimSpace(line[len("RCPT TO:"):]))
		s.reply("250 OK")
	case upper == "DATA":
		s.state = stateData
		s.reply("354 Start mail input; end with <CRLF>.<CRLF>")
	case upper == "QUIT":
		s.reply("221 " + s.domain + " Service closing transmission channel")
		s.state = stateClosed
	case upper == "RSET":
		s.resetEnvelope()
		s.reply("250 OK")
	case upper == "NOOP":
		s.reply("250 OK")
	default:
		s.reply("500 Command unrecognized")
	}
}

func (s *session) finishData(raw []byte) {
	if err := s.deliver(raw); err != nil {
		s.logger.Error("process message", "error", err)
		s.reply("554 Transaction failed")
	} else {
		s.reply("250 OK: Message accepted")
	}
	s.resetEnvelope()
	s.state = stateReady
}

// deliver resolves the envelope recipient and stores the parsed message.
// Unknown recipients are dropped after the wire-level accept; the sending
// peer is never told.
func (s *session) deliver(raw []byte) error {
	recipient := strings.TrimSpace(s.rcptTo)
	account, ok := s.store.GetAccountByEmail(recipient)
	if !ok {
		s.logger.Info("recipient not found, dropping message", "recipient", recipient)
		metrics.MessagesDroppedTotal.WithLabelValues("unknown_recipient").Inc()
		return nil
	}

	parsed := mailparse.Parse(string(raw))
	sender := parsed.From.Name
	if sender == "" {
		sender = parsed.From.Address
	}
	subject := parsed.Subject
	if subject == "" {
		subject = "(No Subject)"
	}
	var html *string
	if parsed.HTML != "" {
		html = &parsed.HTML
	}

	msg, err := s.store.CreateMessage(store.Message{
		AccountID:   account.ID,
		Sender:      sender,
		SenderEmail: parsed.From.Address,
		Recipient:   recipient,
		Subject:     subject,
		Content:     parsed.Text,
		HTMLContent: html,
		Headers:     parsed.Headers,
	})
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	metrics.MessagesAcceptedTotal.Inc()
	s.logger.Info("message received", "recipient", recipient, "from", parsed.From.Address, "id", msg.ID)
	if s.hub != nil {
		s.hub.Broadcast(account.Email, newMessageEvent(msg))
	}
	return nil
}

func (s *session) resetEnvelope() {
	s.mailFrom = ""
	s.rcptTo = ""
}

func (s *session) reply(line string) {
	if _, err := io.WriteString(s.out, line+"\r\n"); err != nil {
		s.logger.Debug("write reply", "error", err)
	}
}

func stripAngles(v string) string {
	v = strings.ReplaceAll(v, "<", "")
	return strings.ReplaceAll(v, ">", "")
}

func newMessageEvent(msg store.Message) []byte {
	payload := map[string]any{
		"id":         msg.ID,
		"accountId":  msg.AccountID,
		"from":       msg.SenderEmail,
		"subject":    msg.Subject,
		"receivedAt": msg.ReceivedAt.UTC().Format(time.RFC3339),
	}
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("event: message\ndata: %s\n\n", data))
}
