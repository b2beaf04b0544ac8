package email

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jhillyerd/enmime"

	"github.com/brandon/mail-engine/pkg/types"
)

// OutgoingMessage is a fully composed message ready for delivery.
type OutgoingMessage struct {
	FromName  string
	From      string
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	Body      types.ComposedBody
	MessageID string
	InReplyTo string
}

// Transport delivers a composed message through one backend kind and
// returns the delivery identifier.
type Transport interface {
	Send(ctx context.Context, acc *types.MailAccount, msg *OutgoingMessage) (string, error)
}

// buildMIME renders the outgoing message as RFC-822 bytes with
// multipart/alternative text and HTML bodies.
func buildMIME(msg *OutgoingMessage) ([]byte, error) {
	b := enmime.Builder().
		From(msg.FromName, msg.From).
		Subject(msg.Subject).
		Text([]byte(msg.Body.Text)).
		HTML([]byte(msg.Body.HTML))
	for _, to := range msg.To {
		b = b.To("", to)
	}
	for _, cc := range msg.Cc {
		b = b.CC("", cc)
	}
	for _, bcc := range msg.Bcc {
		b = b.BCC("", bcc)
	}

	root, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	root.Header.Set("Message-Id", msg.MessageID)
	if msg.InReplyTo != "" {
		root.Header.Set("In-Reply-To", msg.InReplyTo)
		root.Header.Set("References", msg.InReplyTo)
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}
