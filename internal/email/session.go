package email

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/pkg/types"
)

// DefaultSessionTimeout is the hard wall-clock cutoff for one mailbox
// session, covering connect through disconnect.
const DefaultSessionTimeout = 20 * time.Second

// FetchedMessage is one message as returned by a range fetch:
// envelope fields, flags, and the raw RFC-822 content.
type FetchedMessage struct {
	UID        uint32
	MessageID  string
	InReplyTo  string
	Subject    string
	Date       time.Time
	FromName   string
	FromEmail  string
	Recipients []string
	Flags      []string
	Raw        string
}

// MailboxSession is one connected, authenticated mailbox session. The
// orchestrators drive it strictly sequentially; Close must be safe on
// every exit path.
type MailboxSession interface {
	// SelectFolder resolves a logical folder name to server
	// candidates, selects the first that succeeds, and returns the
	// message count.
	SelectFolder(folder string) (uint32, error)
	// FetchRange fetches messages by sequence number, ascending.
	FetchRange(from, to uint32) ([]*FetchedMessage, error)
	// FetchSection fetches one body section of a message by UID.
	// An empty section name fetches the entire raw message.
	FetchSection(uid uint32, section string) (string, error)
	// FindUID resolves a Message-ID header to a UID in the selected
	// folder.
	FindUID(messageID string) (uint32, error)
	// ListFolders lists the server's mailboxes.
	ListFolders() ([]types.Folder, error)
	Close() error
}

// SessionFactory opens a session for an account using the decoded
// plaintext secret.
type SessionFactory func(acc *types.MailAccount, secret string) (MailboxSession, error)

// imapSession implements MailboxSession on go-imap. The whole session
// runs under a wall-clock timer that forcibly tears the connection
// down, bounding worst-case latency when a server hangs mid-handshake.
type imapSession struct {
	client *client.Client
	logger *logrus.Entry
	timer  *time.Timer
}

// DialIMAP returns a SessionFactory that connects with TLS and logs in,
// arming the hard session timeout before the first network call.
func DialIMAP(timeout time.Duration, logger *logrus.Logger) SessionFactory {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return func(acc *types.MailAccount, secret string) (MailboxSession, error) {
		addr := fmt.Sprintf("%s:%d", acc.Host, acc.Port)

		// The deadline is fixed before dialing so connect, login and
		// everything after share one wall-clock window.
		deadline := time.Now().Add(timeout)
		dialer := &net.Dialer{Deadline: deadline}
		cl, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{
			ServerName: acc.Host,
			MinVersion: tls.VersionTLS12,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mailbox server: %w", err)
		}

		s := &imapSession{
			client: cl,
			logger: logger.WithField("account", acc.Name),
		}
		s.timer = time.AfterFunc(time.Until(deadline), func() {
			s.logger.Warn("Session timeout reached, terminating connection")
			cl.Terminate() //nolint:errcheck
		})

		if err := cl.Login(acc.Address, secret); err != nil {
			s.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to login to mailbox server: %w", err)
		}

		s.logger.Debug("Mailbox session established")
		return s, nil
	}
}

func (s *imapSession) SelectFolder(folder string) (uint32, error) {
	candidates := FolderCandidates(folder)
	var lastErr error
	for _, name := range candidates {
		mbox, err := s.client.Select(name, false)
		if err == nil {
			return mbox.Messages, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("no selectable folder for %q (tried %s): %w",
		folder, strings.Join(candidates, ", "), lastErr)
}

func (s *imapSession) FetchRange(from, to uint32) ([]*FetchedMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, to)

	items := []imap.FetchItem{
		imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate, imap.FetchRFC822,
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqSet, items, messages)
	}()

	var fetched []*FetchedMessage
	for msg := range messages {
		fetched = append(fetched, newFetchedMessage(msg))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return fetched, nil
}

func (s *imapSession) FetchSection(uid uint32, section string) (string, error) {
	item := imap.FetchItem("BODY.PEEK[" + section + "]")
	bsn, err := imap.ParseBodySectionName(item)
	if err != nil {
		return "", fmt.Errorf("invalid body section %q: %w", section, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, []imap.FetchItem{bsn.FetchItem()}, messages)
	}()

	var content string
	for msg := range messages {
		if content == "" {
			content = string(readAnyBody(msg))
		}
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("failed to fetch section %q: %w", section, err)
	}
	return content, nil
}

func (s *imapSession) FindUID(messageID string) (uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Set("Message-Id", messageID)

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return 0, fmt.Errorf("failed to search for message: %w", err)
	}
	if len(uids) == 0 {
		return 0, fmt.Errorf("no message with id %q in selected folder", messageID)
	}
	return uids[0], nil
}

func (s *imapSession) ListFolders() ([]types.Folder, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var folders []types.Folder
	for m := range mailboxes {
		folders = append(folders, types.Folder{Name: m.Name, Path: m.Name})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

func (s *imapSession) Close() error {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.client != nil {
		err := s.client.Logout()
		s.client = nil
		return err
	}
	return nil
}

func newFetchedMessage(msg *imap.Message) *FetchedMessage {
	fm := &FetchedMessage{
		UID:   msg.Uid,
		Flags: append([]string(nil), msg.Flags...),
		Raw:   string(readAnyBody(msg)),
	}

	if env := msg.Envelope; env != nil {
		fm.MessageID = env.MessageId
		fm.Subject = env.Subject
		fm.Date = env.Date
		fm.InReplyTo = env.InReplyTo
		if len(env.From) > 0 {
			fm.FromName = env.From[0].PersonalName
			fm.FromEmail = env.From[0].Address()
		}
		for _, addrs := range [][]*imap.Address{env.To, env.Cc, env.Bcc} {
			for _, a := range addrs {
				fm.Recipients = append(fm.Recipients, a.Address())
			}
		}
	}
	if fm.Date.IsZero() {
		fm.Date = msg.InternalDate
	}
	return fm
}

// readAnyBody drains the first non-empty body literal of a fetched
// message. Servers disagree about which section key carries the
// content, so every available key is tried.
func readAnyBody(msg *imap.Message) []byte {
	if msg == nil || msg.Body == nil {
		return nil
	}
	if literal, ok := msg.Body[nil]; ok {
		return readLiteral(literal)
	}
	for _, literal := range msg.Body {
		if b := readLiteral(literal); len(b) > 0 {
			return b
		}
	}
	return nil
}

func readLiteral(literal imap.Literal) []byte {
	if literal == nil {
		return nil
	}
	b, err := io.ReadAll(literal)
	if err != nil && len(b) == 0 {
		return nil
	}
	return b
}
