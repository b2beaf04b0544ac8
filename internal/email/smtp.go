package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/pkg/types"
)

// smtpTransport is the generic submission backend: one fresh
// authenticated connection per send, no pooling. Implicit TLS or
// STARTTLS is chosen by the conventional port number.
type smtpTransport struct {
	logger *logrus.Logger
}

func newSMTPTransport(logger *logrus.Logger) *smtpTransport {
	return &smtpTransport{logger: logger}
}

func (t *smtpTransport) Send(ctx context.Context, acc *types.MailAccount, msg *OutgoingMessage) (string, error) {
	secret, err := DecodeSecret(acc)
	if err != nil {
		return "", err
	}

	raw, err := buildMIME(msg)
	if err != nil {
		return "", err
	}

	host := acc.SMTPHost
	if host == "" {
		host = acc.Host
	}
	port := acc.SMTPPort
	if port == 0 {
		port = 587
	}

	client, err := t.connect(host, port)
	if err != nil {
		return "", err
	}
	defer client.Close() //nolint:errcheck

	auth := smtp.PlainAuth("", acc.Address, secret, host)
	if err := client.Auth(auth); err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}

	if err := client.Mail(acc.Address); err != nil {
		return "", fmt.Errorf("failed to set sender: %w", err)
	}
	recipients := append(append(append([]string(nil), msg.To...), msg.Cc...), msg.Bcc...)
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return "", fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("failed to send data command: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close data writer: %w", err)
	}
	if err := client.Quit(); err != nil {
		return "", fmt.Errorf("failed to quit: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"host": host,
		"id":   msg.MessageID,
	}).Debug("Submitted via SMTP")
	return msg.MessageID, nil
}

// connect opens the SMTP connection: implicit TLS on port 465,
// STARTTLS everywhere else.
func (t *smtpTransport) connect(host string, port int) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	if port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		client, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to create SMTP client: %w", err)
		}
		return client, nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to start TLS: %w", err)
	}
	return client, nil
}
