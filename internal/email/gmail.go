package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/internal/store"
	"github.com/brandon/mail-engine/pkg/types"
)

const (
	gmailSendURL   = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// gmailTransport submits mail through the Gmail API: the full RFC-822
// message, base64url-encoded, in one POST.
type gmailTransport struct {
	oauthTransport
	sendURL string
}

func newGmailTransport(st *store.Store, httpClient *http.Client, clientID, clientSecret string, logger *logrus.Logger) *gmailTransport {
	return &gmailTransport{
		oauthTransport: oauthTransport{
			store:        st,
			httpClient:   httpClient,
			tokenURL:     googleTokenURL,
			clientID:     clientID,
			clientSecret: clientSecret,
			logger:       logger,
		},
		sendURL: gmailSendURL,
	}
}

func (t *gmailTransport) Send(ctx context.Context, acc *types.MailAccount, msg *OutgoingMessage) (string, error) {
	raw, err := buildMIME(msg)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return "", err
	}

	status, body, err := t.postJSON(ctx, t.sendURL, acc.AccessToken, payload)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		token, err := t.refreshAccessToken(ctx, acc)
		if err != nil {
			return "", err
		}
		status, body, err = t.postJSON(ctx, t.sendURL, token, payload)
		if err != nil {
			return "", err
		}
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("gmail send failed: %s", strings.TrimSpace(string(body)))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.ID == "" {
		return msg.MessageID, nil
	}
	return result.ID, nil
}
