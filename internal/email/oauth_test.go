package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brandon/mail-engine/internal/store"
	"github.com/brandon/mail-engine/pkg/types"
)

func transportFixtures(t *testing.T) (*store.Store, *types.MailAccount, *OutgoingMessage) {
	t.Helper()
	logger := discardLogger()
	db, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	st := store.NewStore(db, logger)

	acc := seedAccount(t, st, types.KindGmail)
	acc.AccessToken = "stale-token"
	acc.RefreshToken = "refresh-1"

	msg := &OutgoingMessage{
		FromName:  "Alice Example",
		From:      "alice@example.com",
		To:        []string{"bob@example.com"},
		Subject:   "Hi",
		Body:      types.ComposedBody{Text: "Hello", HTML: "<div>Hello</div>"},
		MessageID: "<generated@example.com>",
	}
	return st, acc, msg
}

func TestGmailSendRefreshesExpiredTokenOnce(t *testing.T) {
	st, acc, msg := transportFixtures(t)

	var sendCalls, tokenCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenCalls++
			require.NoError(t, r.ParseForm())
			require.Equal(t, "refresh_token", r.FormValue("grant_type"))
			require.Equal(t, "refresh-1", r.FormValue("refresh_token"))
			json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
				"access_token": "fresh-token",
				"expires_in":   3600,
			})
		case "/send":
			sendCalls++
			if r.Header.Get("Authorization") != "Bearer fresh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var payload struct {
				Raw string `json:"raw"`
			}
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &payload))
			require.NotEmpty(t, payload.Raw)
			json.NewEncoder(w).Encode(map[string]string{"id": "gm-1"}) //nolint:errcheck
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	transport := newGmailTransport(st, server.Client(), "cid", "csec", discardLogger())
	transport.sendURL = server.URL + "/send"
	transport.tokenURL = server.URL + "/token"

	id, err := transport.Send(context.Background(), acc, msg)
	require.NoError(t, err)
	require.Equal(t, "gm-1", id)
	require.Equal(t, 1, tokenCalls)
	require.Equal(t, 2, sendCalls)
	require.Equal(t, "fresh-token", acc.AccessToken)

	// The refreshed tokens must survive a reload from the store.
	stored, err := st.GetAccount(acc.ID)
	require.NoError(t, err)
	require.Equal(t, "fresh-token", stored.AccessToken)
	require.Equal(t, "refresh-1", stored.RefreshToken)
	require.NotNil(t, stored.TokenExpiry)
}

func TestGmailSendSurfacesAPIError(t *testing.T) {
	st, acc, msg := transportFixtures(t)
	acc.AccessToken = "good-token"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("quota exceeded")) //nolint:errcheck
	}))
	defer server.Close()

	transport := newGmailTransport(st, server.Client(), "cid", "csec", discardLogger())
	transport.sendURL = server.URL

	_, err := transport.Send(context.Background(), acc, msg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestGmailSendRefreshFailureSurfaces(t *testing.T) {
	st, acc, msg := transportFixtures(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("invalid_grant")) //nolint:errcheck
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	transport := newGmailTransport(st, server.Client(), "cid", "csec", discardLogger())
	transport.sendURL = server.URL + "/send"
	transport.tokenURL = server.URL + "/token"

	_, err := transport.Send(context.Background(), acc, msg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_grant")
}

func TestGmailRefreshWithoutRefreshToken(t *testing.T) {
	st, acc, msg := transportFixtures(t)
	acc.RefreshToken = ""

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	transport := newGmailTransport(st, server.Client(), "cid", "csec", discardLogger())
	transport.sendURL = server.URL

	_, err := transport.Send(context.Background(), acc, msg)
	require.ErrorIs(t, err, ErrCredential)
}

func TestOutlookSendPayload(t *testing.T) {
	st, acc, msg := transportFixtures(t)
	acc.AccessToken = "good-token"

	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		// Graph answers 202 Accepted with no body.
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	transport := newOutlookTransport(st, server.Client(), "cid", "csec", discardLogger())
	transport.sendURL = server.URL

	id, err := transport.Send(context.Background(), acc, msg)
	require.NoError(t, err)
	require.Equal(t, "<generated@example.com>", id)

	require.Equal(t, false, captured["saveToSentItems"])
	message := captured["message"].(map[string]interface{})
	require.Equal(t, "Hi", message["subject"])
	require.Equal(t, "<generated@example.com>", message["internetMessageId"])
	to := message["toRecipients"].([]interface{})
	require.Len(t, to, 1)
}
