package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/pkg/types"
)

// ErrAccountNotFound is returned when an account lookup misses.
var ErrAccountNotFound = errors.New("account not found")

// ErrMessageNotFound is returned when a message lookup misses.
var ErrMessageNotFound = errors.New("message not found")

// Store provides access to accounts, messages, and owner profiles.
// All message writes are upserts keyed on (account_id, message_uid);
// the store never deletes rows on behalf of the engine.
type Store struct {
	db     *DB
	logger *logrus.Logger
}

// NewStore creates a new store instance.
func NewStore(db *DB, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// UpsertAccount inserts or updates an account keyed by name and
// returns its id.
func (s *Store) UpsertAccount(acc *types.MailAccount) (int64, error) {
	query := `
		INSERT INTO accounts (owner_id, name, kind, host, port, smtp_host, smtp_port, address, display_name, secret, access_token, refresh_token, token_expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			owner_id = excluded.owner_id,
			kind = excluded.kind,
			host = excluded.host,
			port = excluded.port,
			smtp_host = excluded.smtp_host,
			smtp_port = excluded.smtp_port,
			address = excluded.address,
			display_name = excluded.display_name,
			secret = excluded.secret,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.DB().Exec(query,
		acc.OwnerID, acc.Name, string(acc.Kind), acc.Host, acc.Port, acc.SMTPHost, acc.SMTPPort,
		acc.Address, acc.DisplayName, acc.Secret, acc.AccessToken, acc.RefreshToken, nullTime(acc.TokenExpiry))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert account: %w", err)
	}

	var id int64
	if err := s.db.DB().QueryRow("SELECT id FROM accounts WHERE name = ?", acc.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get account id: %w", err)
	}
	return id, nil
}

// GetAccount retrieves an account by id.
func (s *Store) GetAccount(id int64) (*types.MailAccount, error) {
	return s.scanAccount(s.db.DB().QueryRow(accountSelect+" WHERE id = ?", id))
}

// GetAccountByName retrieves an account by its configured name.
func (s *Store) GetAccountByName(name string) (*types.MailAccount, error) {
	return s.scanAccount(s.db.DB().QueryRow(accountSelect+" WHERE name = ?", name))
}

const accountSelect = `
	SELECT id, owner_id, name, kind, host, port, smtp_host, smtp_port, address, display_name, secret,
	       access_token, refresh_token, token_expiry,
	       last_sync_status, last_sync_error, last_synced_at
	FROM accounts`

func (s *Store) scanAccount(row *sql.Row) (*types.MailAccount, error) {
	var acc types.MailAccount
	var kind string
	var host, smtpHost, displayName, secret, accessToken, refreshToken sql.NullString
	var port, smtpPort sql.NullInt64
	var tokenExpiry, lastSyncedAt sql.NullString
	var syncStatus, syncError sql.NullString

	err := row.Scan(
		&acc.ID, &acc.OwnerID, &acc.Name, &kind, &host, &port, &smtpHost, &smtpPort, &acc.Address,
		&displayName, &secret, &accessToken, &refreshToken, &tokenExpiry,
		&syncStatus, &syncError, &lastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	acc.Kind = types.ProtocolKind(kind)
	acc.Host = host.String
	acc.Port = int(port.Int64)
	acc.SMTPHost = smtpHost.String
	acc.SMTPPort = int(smtpPort.Int64)
	acc.DisplayName = displayName.String
	acc.Secret = secret.String
	acc.AccessToken = accessToken.String
	acc.RefreshToken = refreshToken.String
	acc.LastSyncStatus = syncStatus.String
	acc.LastSyncError = syncError.String
	acc.TokenExpiry = parseNullTime(tokenExpiry)
	acc.LastSyncedAt = parseNullTime(lastSyncedAt)
	return &acc, nil
}

// SetSyncStatus records the outcome of a sync attempt on the account.
func (s *Store) SetSyncStatus(accountID int64, status, errText string) error {
	_, err := s.db.DB().Exec(
		`UPDATE accounts SET last_sync_status = ?, last_sync_error = ?, last_synced_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, errText, formatTime(time.Now()), accountID)
	if err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}

// SetTokens overwrites the OAuth tokens after a refresh. Concurrent
// refreshes race last-write-wins.
func (s *Store) SetTokens(accountID int64, accessToken, refreshToken string, expiry *time.Time) error {
	_, err := s.db.DB().Exec(
		`UPDATE accounts SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		accessToken, refreshToken, nullTime(expiry), accountID)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

// UpsertMessage inserts or updates a message keyed on
// (account_id, message_uid) and returns its id. Body fields are
// truncated to the persistence ceiling; empty bodies are stored as
// NULL so the recovery path can find them later.
func (s *Store) UpsertMessage(msg *types.MailMessage) (int64, error) {
	recipientsJSON, err := json.Marshal(msg.Recipients)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal recipients: %w", err)
	}

	query := `
		INSERT INTO messages (account_id, message_uid, thread_id, folder, subject, sender_email, sender_name, recipients, body_text, body_html, snippet, is_read, is_starred, has_attachments, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, message_uid) DO UPDATE SET
			thread_id = excluded.thread_id,
			folder = excluded.folder,
			subject = excluded.subject,
			sender_email = excluded.sender_email,
			sender_name = excluded.sender_name,
			recipients = excluded.recipients,
			body_text = excluded.body_text,
			body_html = excluded.body_html,
			snippet = excluded.snippet,
			is_read = excluded.is_read,
			is_starred = excluded.is_starred,
			has_attachments = excluded.has_attachments,
			received_at = excluded.received_at,
			synced_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.DB().Exec(query,
		msg.AccountID,
		msg.MessageUID,
		msg.ThreadID,
		msg.Folder,
		msg.Subject,
		msg.SenderEmail,
		msg.SenderName,
		string(recipientsJSON),
		nullBody(truncateBody(msg.BodyText)),
		nullBody(truncateBody(msg.BodyHTML)),
		msg.Snippet,
		msg.IsRead,
		msg.IsStarred,
		msg.HasAttachments,
		formatTime(msg.ReceivedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert message: %w", err)
	}

	var id int64
	err = s.db.DB().QueryRow(
		"SELECT id FROM messages WHERE account_id = ? AND message_uid = ?",
		msg.AccountID, msg.MessageUID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}
	return id, nil
}

// UpdateBody fills in recovered body fields in place.
func (s *Store) UpdateBody(messageID int64, bodyText, bodyHTML, snippet string) error {
	_, err := s.db.DB().Exec(
		`UPDATE messages SET body_text = ?, body_html = ?, snippet = ?, synced_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullBody(truncateBody(bodyText)), nullBody(truncateBody(bodyHTML)), snippet, messageID)
	if err != nil {
		return fmt.Errorf("failed to update message body: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by id.
func (s *Store) GetMessage(messageID int64) (*types.MailMessage, error) {
	query := `
		SELECT id, account_id, message_uid, thread_id, folder, subject, sender_email, sender_name,
		       recipients, body_text, body_html, snippet, is_read, is_starred, has_attachments,
		       received_at, synced_at
		FROM messages WHERE id = ?
	`
	var msg types.MailMessage
	var threadID, subject, senderEmail, senderName, recipientsJSON sql.NullString
	var bodyText, bodyHTML, snippet sql.NullString
	var receivedAt, syncedAt string

	err := s.db.DB().QueryRow(query, messageID).Scan(
		&msg.ID, &msg.AccountID, &msg.MessageUID, &threadID, &msg.Folder,
		&subject, &senderEmail, &senderName, &recipientsJSON,
		&bodyText, &bodyHTML, &snippet,
		&msg.IsRead, &msg.IsStarred, &msg.HasAttachments,
		&receivedAt, &syncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	msg.ThreadID = threadID.String
	msg.Subject = subject.String
	msg.SenderEmail = senderEmail.String
	msg.SenderName = senderName.String
	msg.BodyText = bodyText.String
	msg.BodyHTML = bodyHTML.String
	msg.Snippet = snippet.String
	msg.ReceivedAt = parseTime(receivedAt)
	msg.SyncedAt = parseTime(syncedAt)

	if recipientsJSON.Valid && recipientsJSON.String != "" {
		if err := json.Unmarshal([]byte(recipientsJSON.String), &msg.Recipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
		}
	}
	return &msg, nil
}

// MessageCount returns the number of stored messages for an account.
func (s *Store) MessageCount(accountID int64) (int, error) {
	var count int
	err := s.db.DB().QueryRow("SELECT COUNT(*) FROM messages WHERE account_id = ?", accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Profile returns the owner's profile. A missing row degrades to the
// zero profile, never an error.
func (s *Store) Profile(ownerID string) (*types.Profile, error) {
	query := `SELECT owner_id, signature, footer_company, footer_extra, footer_website, footer_bank FROM profiles WHERE owner_id = ?`
	var p types.Profile
	var signature, company, extra, website, bank sql.NullString

	err := s.db.DB().QueryRow(query, ownerID).Scan(&p.OwnerID, &signature, &company, &extra, &website, &bank)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &types.Profile{OwnerID: ownerID}, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p.Signature = signature.String
	p.FooterCompany = company.String
	p.FooterExtra = extra.String
	p.FooterWebsite = website.String
	p.FooterBank = bank.String
	return &p, nil
}

// UpsertProfile inserts or updates an owner profile.
func (s *Store) UpsertProfile(p *types.Profile) error {
	query := `
		INSERT INTO profiles (owner_id, signature, footer_company, footer_extra, footer_website, footer_bank)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			signature = excluded.signature,
			footer_company = excluded.footer_company,
			footer_extra = excluded.footer_extra,
			footer_website = excluded.footer_website,
			footer_bank = excluded.footer_bank
	`
	_, err := s.db.DB().Exec(query, p.OwnerID, p.Signature, p.FooterCompany, p.FooterExtra, p.FooterWebsite, p.FooterBank)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// truncateBody caps a body at the persistence ceiling, cutting back to
// a rune boundary so the stored value stays valid UTF-8.
func truncateBody(s string) string {
	if len(s) <= types.MaxBodyBytes {
		return s
	}
	cut := types.MaxBodyBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func nullBody(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
