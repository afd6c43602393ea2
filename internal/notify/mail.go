package notify

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os/exec"
	"strings"
)

// Message is one outbound mail, ready to encode.
type Message struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Encode renders the message as a complete mail with headers, the
// form `sendmail -t` consumes.
func (m Message) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\n", m.To)
	fmt.Fprintf(&b, "From: %s\n", m.From)
	fmt.Fprintf(&b, "Subject: %s\n", mime.QEncoding.Encode("utf-8", m.Subject))
	b.WriteString("MIME-Version: 1.0\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\n")
	b.WriteString("\n")
	b.WriteString(m.Body)
	if !strings.HasSuffix(m.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// Sender delivers one message.
type Sender interface {
	Send(m Message) error
}

// SendmailSender pipes messages through the local sendmail binary,
// letting it pick the recipients out of the headers.
type SendmailSender struct {
	Path string
}

func (s SendmailSender) Send(m Message) error {
	path := s.Path
	if path == "" {
		path = "sendmail"
	}
	cmd := exec.Command(path, "-t")
	cmd.Stdin = strings.NewReader(m.Encode())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sendmail: %v: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// DebugSender writes messages to w instead of delivering them.
type DebugSender struct {
	W io.Writer
}

func (s DebugSender) Send(m Message) error {
	_, err := fmt.Fprintln(s.W, m.Encode())
	return err
}
