package email

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandon/mail-engine/internal/store"
	"github.com/brandon/mail-engine/pkg/types"
)

func seedEmptyMessage(t *testing.T, st *store.Store, accountID int64, uid string) int64 {
	t.Helper()
	id, err := st.UpsertMessage(&types.MailMessage{
		AccountID:  accountID,
		MessageUID: uid,
		Folder:     "INBOX",
		Subject:    "No body yet",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)
	return id
}

func TestFetchBodyPrimarySection(t *testing.T) {
	session := &fakeSession{
		total:    1,
		sections: map[string]string{"7:1": "This is the plain body text."},
	}
	dialer := &sessionDialer{session: session}
	m, st := testManager(t, dialer.dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.True(t, recovered.OK)
	require.Equal(t, "This is the plain body text.", recovered.Text)
	require.Empty(t, recovered.HTML)
	require.Equal(t, 1, dialer.opens)

	msg, err := st.GetMessage(id)
	require.NoError(t, err)
	require.Equal(t, "This is the plain body text.", msg.BodyText)
	require.Equal(t, "This is the plain body text.", msg.Snippet)
}

func TestFetchBodyClassifiesHTML(t *testing.T) {
	session := &fakeSession{
		total:    1,
		sections: map[string]string{"7:1": "<div>Rendered <b>content</b> here</div>"},
	}
	m, st := testManager(t, (&sessionDialer{session: session}).dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.True(t, recovered.OK)
	require.Empty(t, recovered.Text)
	require.Contains(t, recovered.HTML, "<div>")
}

func TestFetchBodyFallsBackToFullMessage(t *testing.T) {
	session := &fakeSession{
		total: 1,
		sections: map[string]string{
			// The whole raw message, reachable only by the full fetch.
			"7:": "Content-Type: text/plain; charset=utf-8\r\n\r\nHello from the raw message.\r\n",
		},
	}
	m, st := testManager(t, (&sessionDialer{session: session}).dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.True(t, recovered.OK)
	require.Equal(t, "Hello from the raw message.", recovered.Text)
}

func TestFetchBodyProbesAlternateSections(t *testing.T) {
	session := &fakeSession{
		total:    1,
		sections: map[string]string{"7:1.2": "<div>Alternate HTML part content</div>"},
	}
	m, st := testManager(t, (&sessionDialer{session: session}).dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.True(t, recovered.OK)
	require.Contains(t, recovered.HTML, "Alternate HTML part")
}

func TestFetchBodyIgnoresWhitespaceStubs(t *testing.T) {
	session := &fakeSession{
		total: 1,
		sections: map[string]string{
			"7:1": "   \r\n ",
			"7:2": "Real content lives in the second part.",
		},
	}
	m, st := testManager(t, (&sessionDialer{session: session}).dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.True(t, recovered.OK)
	require.Equal(t, "Real content lives in the second part.", recovered.Text)
}

func TestFetchBodyExhaustionRetriesOnceThenSoftFails(t *testing.T) {
	session := &fakeSession{total: 1, sections: map[string]string{}}
	dialer := &sessionDialer{session: session}
	m, st := testManager(t, dialer.dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.False(t, recovered.OK)
	require.Contains(t, recovered.Message, "no body content")
	require.Equal(t, 2, dialer.opens, "the full sequence retries exactly once")

	// The stored record must be untouched by a failed recovery.
	msg, err := st.GetMessage(id)
	require.NoError(t, err)
	require.Empty(t, msg.BodyText)
	require.Empty(t, msg.BodyHTML)
}

func TestFetchBodyResolvesUIDByMessageID(t *testing.T) {
	session := &fakeSession{
		total:    1,
		uids:     map[string]uint32{"<abc@example.com>": 42},
		sections: map[string]string{"42:1": "Found via Message-ID search."},
	}
	m, st := testManager(t, (&sessionDialer{session: session}).dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "<abc@example.com>")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.True(t, recovered.OK)
	require.Equal(t, "Found via Message-ID search.", recovered.Text)
}

func TestFetchBodyHonorsUIDHint(t *testing.T) {
	session := &fakeSession{
		total:    1,
		sections: map[string]string{"99:1": "Content at the hinted UID."},
	}
	m, st := testManager(t, (&sessionDialer{session: session}).dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "<abc@example.com>")

	recovered, err := m.FetchBody("alice", id, 99)
	require.NoError(t, err)
	require.True(t, recovered.OK)
	require.Equal(t, "Content at the hinted UID.", recovered.Text)
}

func TestFetchBodyCredentialFailureIsFatal(t *testing.T) {
	dialer := &sessionDialer{session: &fakeSession{}}
	m, st := testManager(t, dialer.dial)
	acc := seedAccount(t, st, types.KindIMAP)

	acc.Secret = "%%not-base64%%"
	_, err := st.UpsertAccount(acc)
	require.NoError(t, err)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	_, err = m.FetchBody("alice", id, 0)
	require.ErrorIs(t, err, ErrCredential)
	require.Zero(t, dialer.opens, "a broken credential must not be retried")
}

func TestFetchBodyConnectFailureRetriesThenSoftFails(t *testing.T) {
	dialer := &sessionDialer{err: fmt.Errorf("connection refused")}
	m, st := testManager(t, dialer.dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	recovered, err := m.FetchBody("alice", id, 0)
	require.NoError(t, err)
	require.False(t, recovered.OK)
	require.Contains(t, recovered.Message, "connection refused")
	require.Equal(t, 2, dialer.opens)
}

func TestFetchBodyRejectsForeignCaller(t *testing.T) {
	m, st := testManager(t, (&sessionDialer{session: &fakeSession{}}).dial)
	acc := seedAccount(t, st, types.KindIMAP)
	id := seedEmptyMessage(t, st, acc.ID, "imap-uid-7")

	_, err := m.FetchBody("mallory", id, 0)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestFetchBodyUnknownMessage(t *testing.T) {
	m, _ := testManager(t, (&sessionDialer{session: &fakeSession{}}).dial)
	_, err := m.FetchBody("alice", 12345, 0)
	require.ErrorIs(t, err, store.ErrMessageNotFound)
}
