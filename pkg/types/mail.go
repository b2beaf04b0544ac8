package types

import "time"

// ProtocolKind selects the transport/session backend for an account.
type ProtocolKind string

const (
	KindIMAP    ProtocolKind = "imap"
	KindGmail   ProtocolKind = "gmail"
	KindOutlook ProtocolKind = "outlook"
)

// Sync status values recorded on an account after each sync attempt.
const (
	SyncStatusOK    = "ok"
	SyncStatusError = "error"
)

// Size ceilings for persisted message content.
const (
	MaxBodyBytes    = 500 * 1024
	MaxSnippetChars = 200
)

// SnippetPlaceholder is stored when no readable preview could be derived.
const SnippetPlaceholder = "(no preview)"

// MailAccount represents one configured mailbox.
type MailAccount struct {
	ID          int64        `json:"id"`
	OwnerID     string       `json:"owner_id"`
	Name        string       `json:"name"`
	Kind        ProtocolKind `json:"kind"`
	Host        string       `json:"host,omitempty"`
	Port        int          `json:"port,omitempty"`
	SMTPHost    string       `json:"smtp_host,omitempty"`
	SMTPPort    int          `json:"smtp_port,omitempty"`
	Address     string       `json:"address"`
	DisplayName string       `json:"display_name,omitempty"`

	// Secret is the opaque encoded credential blob for the generic
	// submission path. OAuth accounts use the token fields instead.
	Secret       string     `json:"-"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenExpiry  *time.Time `json:"-"`

	LastSyncStatus string     `json:"last_sync_status,omitempty"`
	LastSyncError  string     `json:"last_sync_error,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// MailMessage is one normalized email. (AccountID, MessageUID) is
// unique; re-syncing updates fields in place, never duplicates.
type MailMessage struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	MessageUID     string    `json:"message_uid"`
	ThreadID       string    `json:"thread_id,omitempty"`
	Folder         string    `json:"folder"`
	Subject        string    `json:"subject"`
	SenderEmail    string    `json:"sender_email"`
	SenderName     string    `json:"sender_name,omitempty"`
	Recipients     []string  `json:"recipients"`
	BodyText       string    `json:"body_text,omitempty"`
	BodyHTML       string    `json:"body_html,omitempty"`
	Snippet        string    `json:"snippet"`
	IsRead         bool      `json:"is_read"`
	IsStarred      bool      `json:"is_starred"`
	HasAttachments bool      `json:"has_attachments"`
	ReceivedAt     time.Time `json:"received_at"`
	SyncedAt       time.Time `json:"synced_at"`
}

// MessageSummary is a lightweight search-result row.
type MessageSummary struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	Folder      string    `json:"folder"`
	Subject     string    `json:"subject"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	ReceivedAt  time.Time `json:"received_at"`
	Snippet     string    `json:"snippet"`
}

// SyncResult reports the outcome of one folder synchronization.
type SyncResult struct {
	Count int    `json:"count"`
	Err   string `json:"error,omitempty"`
}

// ComposedBody is the final outbound text/HTML pair produced by the
// body assembler. Never persisted directly.
type ComposedBody struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// Profile carries the optional signature and footer components of an
// account owner. A missing profile is represented by the zero value.
type Profile struct {
	OwnerID       string `json:"owner_id"`
	Signature     string `json:"signature,omitempty"`
	FooterCompany string `json:"footer_company,omitempty"`
	FooterExtra   string `json:"footer_extra,omitempty"`
	FooterWebsite string `json:"footer_website,omitempty"`
	FooterBank    string `json:"footer_bank,omitempty"`
}

// Folder describes a mailbox folder as reported by the remote server.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}
