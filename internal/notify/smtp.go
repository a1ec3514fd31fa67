package notify

import (
	"context"
	"fmt"
	"net/textproto"
	"sort"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
)

// DefaultSMTPTimeout bounds a single SMTP session when the context has no
// earlier deadline
const DefaultSMTPTimeout = 15 * time.Second

// SMTPTransport delivers messages through an SMTP relay, upgrading to TLS
// when the server offers STARTTLS
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	now      func() time.Time
}

// NewSMTPTransport creates a transport. An empty username skips AUTH; a
// configured username requires the server to offer it.
func NewSMTPTransport(host, port, username, password string) (*SMTPTransport, error) {
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return nil, fmt.Errorf("invalid smtp port %q", port)
	}
	return &SMTPTransport{
		host:     host,
		port:     p,
		username: username,
		password: password,
		now:      time.Now,
	}, nil
}

// Send delivers msg. The context bounds dialing and the session.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m, err := newMailMsg(msg, t.now())
	if err != nil {
		return err
	}

	timeout := DefaultSMTPTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("failed to deliver message: %w", context.DeadlineExceeded)
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	opts := []mail.Option{
		mail.WithPort(t.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(timeout),
	}
	if t.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.username),
			mail.WithPassword(t.password),
		)
	}

	client, err := mail.NewClient(t.host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to deliver message: %w", err)
	}
	return nil
}

// newMailMsg renders msg as a multipart/alternative message with text and
// HTML parts
func newMailMsg(msg Message, now time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(now)

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetGenHeader(mail.Header(textproto.CanonicalMIMEHeaderKey(k)), msg.Headers[k])
	}

	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}
