package email

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/internal/mailparse"
	"github.com/brandon/mail-engine/pkg/types"
)

// recoveryRetryDelay is the pause before the single full-sequence
// retry, absorbing transient server-side locking and indexing latency.
const recoveryRetryDelay = 2 * time.Second

// minRecoveredLength filters out whitespace stubs some servers return
// for empty sections.
const minRecoveredLength = 10

// alternateSections are probed last, in order, when the conventional
// sections yielded nothing.
var alternateSections = []string{"1.1", "1.2", "2"}

// RecoveredBody is the outcome of a body recovery attempt. Exhaustion
// of all strategies is a soft failure: OK is false and the stored
// message is left untouched.
type RecoveredBody struct {
	OK      bool   `json:"ok"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
	Message string `json:"message,omitempty"`
}

// FetchBody recovers the body of a previously-synced message whose
// body fields are empty. It runs an ordered list of fetch strategies,
// each tried only when all earlier ones produced nothing, and retries
// the whole sequence exactly once after a short delay.
func (m *Manager) FetchBody(callerID string, messageID int64, uidHint uint32) (*RecoveredBody, error) {
	msg, err := m.store.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	acc, err := m.store.GetAccount(msg.AccountID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(callerID, acc); err != nil {
		return nil, err
	}

	log := m.logger.WithFields(logrus.Fields{
		"account":    acc.Name,
		"message_id": messageID,
	})

	text, html, err := m.recoverOnce(acc, msg, uidHint, log)
	if errors.Is(err, ErrCredential) {
		// A broken credential cannot heal within the retry window.
		return nil, err
	}
	if err != nil || (text == "" && html == "") {
		if err != nil {
			log.WithError(err).Warn("Body recovery attempt failed, retrying once")
		}
		time.Sleep(m.retryDelay)
		text, html, err = m.recoverOnce(acc, msg, uidHint, log)
	}

	if err != nil {
		return &RecoveredBody{OK: false, Message: err.Error()}, nil
	}
	if text == "" && html == "" {
		return &RecoveredBody{OK: false, Message: "no body content found after all fetch strategies"}, nil
	}

	snippet := mailparse.Snippet(text, html)
	if err := m.store.UpdateBody(messageID, text, html, snippet); err != nil {
		return nil, err
	}
	log.Info("Body recovered")
	return &RecoveredBody{OK: true, Text: text, HTML: html}, nil
}

// recoverOnce opens a fresh session and runs the full strategy
// sequence one time.
func (m *Manager) recoverOnce(acc *types.MailAccount, msg *types.MailMessage, uidHint uint32, log *logrus.Entry) (text, html string, err error) {
	session, err := m.openSession(acc)
	if err != nil {
		return "", "", err
	}
	defer session.Close() //nolint:errcheck

	if _, err := session.SelectFolder(msg.Folder); err != nil {
		return "", "", err
	}

	uid := uidHint
	if uid == 0 {
		uid, err = resolveUID(session, msg)
		if err != nil {
			return "", "", err
		}
	}

	strategies := []func() (string, string){
		func() (string, string) { return classifySection(fetchSection(session, uid, "1", log)) },
		func() (string, string) { return mailparse.ParseMessage(fetchSection(session, uid, "TEXT", log)) },
		func() (string, string) { return mailparse.ParseMessage(fetchSection(session, uid, "", log)) },
		func() (string, string) {
			for _, section := range alternateSections {
				if t, h := classifySection(fetchSection(session, uid, section, log)); t != "" || h != "" {
					return t, h
				}
			}
			return "", ""
		},
	}

	for _, strategy := range strategies {
		if text, html = strategy(); text != "" || html != "" {
			return text, html, nil
		}
	}
	return "", "", nil
}

func resolveUID(session MailboxSession, msg *types.MailMessage) (uint32, error) {
	if strings.HasPrefix(msg.MessageUID, "imap-uid-") {
		var uid uint32
		for _, c := range msg.MessageUID[len("imap-uid-"):] {
			if c < '0' || c > '9' {
				uid = 0
				break
			}
			uid = uid*10 + uint32(c-'0')
		}
		if uid > 0 {
			return uid, nil
		}
	}
	return session.FindUID(msg.MessageUID)
}

// fetchSection fetches one body section; strategy-level failures are
// logged but never abort the sequence.
func fetchSection(session MailboxSession, uid uint32, section string, log *logrus.Entry) string {
	content, err := session.FetchSection(uid, section)
	if err != nil {
		log.WithError(err).WithField("section", section).Debug("Section fetch failed")
		return ""
	}
	return content
}

// classifySection decides whether fetched content is HTML or plain
// text. Whitespace stubs below the minimum length count as nothing.
func classifySection(content string) (text, html string) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= minRecoveredLength {
		return "", ""
	}
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<body") || strings.Contains(lower, "<div") {
		return "", trimmed
	}
	return trimmed, ""
}
