package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/internal/mailparse"
	"github.com/brandon/mail-engine/internal/store"
	"github.com/brandon/mail-engine/pkg/types"
)

// ErrNotAuthorized is returned when the caller does not own the
// account it is operating on.
var ErrNotAuthorized = errors.New("caller does not own this account")

// OAuthConfig carries the application credentials for the OAuth send
// backends.
type OAuthConfig struct {
	GmailClientID       string
	GmailClientSecret   string
	OutlookClientID     string
	OutlookClientSecret string
}

// Manager is the engine's operation surface: sync, body recovery,
// composition and delivery. Each invocation is a single-shot,
// request-scoped unit of work; the manager holds no session state.
type Manager struct {
	store      *store.Store
	dial       SessionFactory
	transports map[types.ProtocolKind]Transport
	logger     *logrus.Logger

	// retryDelay is the pause before the single body-recovery retry.
	retryDelay time.Duration
}

// NewManager creates a manager with the default transport backends.
func NewManager(st *store.Store, dial SessionFactory, oauth OAuthConfig, logger *logrus.Logger) *Manager {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Manager{
		store: st,
		dial:  dial,
		transports: map[types.ProtocolKind]Transport{
			types.KindIMAP:    newSMTPTransport(logger),
			types.KindGmail:   newGmailTransport(st, httpClient, oauth.GmailClientID, oauth.GmailClientSecret, logger),
			types.KindOutlook: newOutlookTransport(st, httpClient, oauth.OutlookClientID, oauth.OutlookClientSecret, logger),
		},
		logger:     logger,
		retryDelay: recoveryRetryDelay,
	}
}

func (m *Manager) authorize(callerID string, acc *types.MailAccount) error {
	if callerID == "" || acc.OwnerID != callerID {
		return fmt.Errorf("%w: account %q", ErrNotAuthorized, acc.Name)
	}
	return nil
}

// openSession decodes the account credential and dials a mailbox
// session.
func (m *Manager) openSession(acc *types.MailAccount) (MailboxSession, error) {
	secret, err := DecodeSecret(acc)
	if err != nil {
		return nil, err
	}
	return m.dial(acc, secret)
}

// ListFolders lists the remote folders of an account.
func (m *Manager) ListFolders(callerID string, accountID int64) ([]types.Folder, error) {
	acc, err := m.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(callerID, acc); err != nil {
		return nil, err
	}

	session, err := m.openSession(acc)
	if err != nil {
		return nil, err
	}
	defer session.Close() //nolint:errcheck

	return session.ListFolders()
}

// SendRequest describes one outbound message.
type SendRequest struct {
	To               []string
	Cc               []string
	Bcc              []string
	Subject          string
	BodyText         string
	BodyHTML         string
	IncludeSignature bool
	IncludeFooter    bool
	IsReply          bool
	// ReplyToMessageID references a stored message whose identifier
	// becomes the In-Reply-To header and thread anchor.
	ReplyToMessageID int64
}

// Send assembles the final body, dispatches it through the account's
// transport backend, and materializes a sent record through the same
// upsert path sync uses.
func (m *Manager) Send(ctx context.Context, callerID string, accountID int64, req *SendRequest) (string, error) {
	acc, err := m.store.GetAccount(accountID)
	if err != nil {
		return "", err
	}
	if err := m.authorize(callerID, acc); err != nil {
		return "", err
	}
	if len(req.To) == 0 {
		return "", fmt.Errorf("no recipients given")
	}

	profile, err := m.store.Profile(acc.OwnerID)
	if err != nil {
		return "", err
	}
	body := AssembleBody(profile, req.BodyText, req.BodyHTML, req.IncludeSignature, req.IncludeFooter, req.IsReply)

	var inReplyTo string
	if req.ReplyToMessageID != 0 {
		if orig, err := m.store.GetMessage(req.ReplyToMessageID); err == nil && orig.AccountID == acc.ID {
			inReplyTo = orig.MessageUID
		}
	}

	out := &OutgoingMessage{
		FromName:  acc.DisplayName,
		From:      acc.Address,
		To:        req.To,
		Cc:        req.Cc,
		Bcc:       req.Bcc,
		Subject:   req.Subject,
		Body:      body,
		MessageID: newMessageID(acc.Address),
		InReplyTo: inReplyTo,
	}

	transport, ok := m.transports[acc.Kind]
	if !ok {
		return "", fmt.Errorf("no transport for account kind %q", acc.Kind)
	}

	id, err := transport.Send(ctx, acc, out)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = out.MessageID
	}

	sent := &types.MailMessage{
		AccountID:   acc.ID,
		MessageUID:  id,
		ThreadID:    inReplyTo,
		Folder:      "SENT",
		Subject:     req.Subject,
		SenderEmail: acc.Address,
		SenderName:  acc.DisplayName,
		Recipients:  append(append(append([]string(nil), req.To...), req.Cc...), req.Bcc...),
		BodyText:    body.Text,
		BodyHTML:    body.HTML,
		Snippet:     mailparse.Snippet(body.Text, body.HTML),
		IsRead:      true,
		ReceivedAt:  time.Now(),
	}
	if _, err := m.store.UpsertMessage(sent); err != nil {
		m.logger.WithError(err).WithField("message_id", id).Warn("Failed to record sent message")
	}

	m.logger.WithFields(logrus.Fields{
		"account": acc.Name,
		"id":      id,
	}).Info("Message sent")
	return id, nil
}

func newMessageID(address string) string {
	domain := "localhost"
	if at := strings.LastIndex(address, "@"); at >= 0 && at+1 < len(address) {
		domain = address[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}
