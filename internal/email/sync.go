package email

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/internal/mailparse"
	"github.com/brandon/mail-engine/pkg/types"
)

// DefaultSyncLimit bounds how many messages one sync fetches from the
// tail of a folder.
const DefaultSyncLimit = 50

// Sync synchronizes the last `limit` messages of a folder into the
// record store. Account-level failures (connect, authenticate, select)
// abort the sync and are recorded on the account; per-message failures
// are logged and skipped so one bad message never blocks the batch.
func (m *Manager) Sync(callerID string, accountID int64, folder string, limit int) types.SyncResult {
	if folder == "" {
		folder = "INBOX"
	}
	if limit <= 0 {
		limit = DefaultSyncLimit
	}

	acc, err := m.store.GetAccount(accountID)
	if err != nil {
		return types.SyncResult{Err: err.Error()}
	}
	if err := m.authorize(callerID, acc); err != nil {
		return types.SyncResult{Err: err.Error()}
	}

	log := m.logger.WithFields(logrus.Fields{
		"account": acc.Name,
		"folder":  folder,
	})

	session, err := m.openSession(acc)
	if err != nil {
		return m.syncFailed(acc.ID, log, err)
	}
	defer session.Close() //nolint:errcheck

	total, err := session.SelectFolder(folder)
	if err != nil {
		return m.syncFailed(acc.ID, log, err)
	}
	if total == 0 {
		m.recordSyncOK(acc.ID, log)
		return types.SyncResult{}
	}

	from := uint32(1)
	if total > uint32(limit) {
		from = total - uint32(limit) + 1
	}

	fetched, err := session.FetchRange(from, total)
	if err != nil {
		return m.syncFailed(acc.ID, log, err)
	}

	count := 0
	for _, fm := range fetched {
		msg := normalizeMessage(acc.ID, folder, fm)
		if _, err := m.store.UpsertMessage(msg); err != nil {
			log.WithError(err).WithField("uid", fm.UID).Warn("Skipping message")
			continue
		}
		count++
	}

	m.recordSyncOK(acc.ID, log)
	log.WithField("count", count).Info("Folder synchronized")
	return types.SyncResult{Count: count}
}

func (m *Manager) syncFailed(accountID int64, log *logrus.Entry, err error) types.SyncResult {
	log.WithError(err).Error("Sync failed")
	if serr := m.store.SetSyncStatus(accountID, types.SyncStatusError, err.Error()); serr != nil {
		log.WithError(serr).Warn("Failed to record sync error")
	}
	return types.SyncResult{Err: err.Error()}
}

func (m *Manager) recordSyncOK(accountID int64, log *logrus.Entry) {
	if err := m.store.SetSyncStatus(accountID, types.SyncStatusOK, ""); err != nil {
		log.WithError(err).Warn("Failed to record sync status")
	}
}

// normalizeMessage maps one fetched message onto a store record:
// envelope fields, normalized flags, parsed bodies, derived snippet.
func normalizeMessage(accountID int64, folder string, fm *FetchedMessage) *types.MailMessage {
	text, html := mailparse.ParseMessage(fm.Raw)
	seen, flagged := normalizeFlags(fm.Flags)

	uid := fm.MessageID
	if uid == "" {
		uid = fmt.Sprintf("imap-uid-%d", fm.UID)
	}
	threadID := fm.InReplyTo
	if threadID == "" {
		threadID = fm.MessageID
	}

	return &types.MailMessage{
		AccountID:      accountID,
		MessageUID:     uid,
		ThreadID:       threadID,
		Folder:         strings.ToUpper(folder),
		Subject:        fm.Subject,
		SenderEmail:    fm.FromEmail,
		SenderName:     fm.FromName,
		Recipients:     fm.Recipients,
		BodyText:       text,
		BodyHTML:       html,
		Snippet:        mailparse.Snippet(text, html),
		IsRead:         seen,
		IsStarred:      flagged,
		HasAttachments: hasAttachmentMarker(fm.Raw),
		ReceivedAt:     fm.Date,
	}
}

// normalizeFlags checks IMAP flags for Seen/Flagged, ignoring case and
// the leading backslash.
func normalizeFlags(flags []string) (seen, flagged bool) {
	for _, f := range flags {
		name := strings.TrimLeft(f, "\\")
		switch {
		case strings.EqualFold(name, "Seen"):
			seen = true
		case strings.EqualFold(name, "Flagged"):
			flagged = true
		}
	}
	return seen, flagged
}

func hasAttachmentMarker(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "content-disposition: attachment")
}
