// Demo sender: composes a multipart message and delivers it to a running
// openmail listener. Useful for exercising the ingestion pipeline by hand:
//
//	go run ./example/send -addr 127.0.0.1:2525 -to dev@openmail.org
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:2525", "SMTP listener address")
	from := flag.String("from", "alice@example.com", "envelope sender")
	to := flag.String("to", "dev@openmail.org", "envelope recipient")
	flag.Parse()

	raw, err := buildMessage(*from, *to)
	if err != nil {
		log.Fatalf("build message: %v", err)
	}

	if err := deliver(*addr, *from, *to, raw); err != nil {
		log.Fatalf("send: %v", err)
	}
	fmt.Printf("delivered demo message to %s via %s\n", *to, *addr)
}

func buildMessage(from, to string) ([]byte, error) {
	var buf bytes.Buffer

	var h message.Header
	h.Set("From", fmt.Sprintf("%q <%s>", "Alice", from))
	h.Set("To", to)
	h.Set("Subject", "Verify your account")
	h.Set("Date", time.Now().Format(time.RFC1123Z))
	h.Set("Message-ID", fmt.Sprintf("<%s@example.com>", uuid.NewString()))
	h.Set("MIME-Version", "1.0")
	h.Set("Content-Type", "multipart/alternative")

	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	var textHeader message.Header
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textPart, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	_, _ = io.WriteString(textPart, "Hello!\r\nConfirm here: https://example.com/verify?token=demo-token\r\n")
	_ = textPart.Close()

	var htmlHeader message.Header
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	htmlPart, err := w.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	_, _ = io.WriteString(htmlPart, `<p>Hello!</p><p><a href="https://example.com/verify?token=demo-token">Confirm</a></p>`)
	_ = htmlPart.Close()

	_ = w.Close()
	return buf.Bytes(), nil
}

func deliver(addr, from, to string, raw []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(from, nil); err != nil {
		return err
	}
	if err := c.Rcpt(to, nil); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}
