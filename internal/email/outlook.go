package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/internal/store"
	"github.com/brandon/mail-engine/pkg/types"
)

const (
	outlookSendURL  = "https://graph.microsoft.com/v1.0/me/sendMail"
	outlookTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

// outlookTransport submits mail through the Microsoft Graph sendMail
// endpoint.
type outlookTransport struct {
	oauthTransport
	sendURL string
}

func newOutlookTransport(st *store.Store, httpClient *http.Client, clientID, clientSecret string, logger *logrus.Logger) *outlookTransport {
	return &outlookTransport{
		oauthTransport: oauthTransport{
			store:        st,
			httpClient:   httpClient,
			tokenURL:     outlookTokenURL,
			clientID:     clientID,
			clientSecret: clientSecret,
			logger:       logger,
		},
		sendURL: outlookSendURL,
	}
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func graphRecipients(addresses []string) []graphRecipient {
	recipients := make([]graphRecipient, 0, len(addresses))
	for _, addr := range addresses {
		var r graphRecipient
		r.EmailAddress.Address = addr
		recipients = append(recipients, r)
	}
	return recipients
}

func (t *outlookTransport) Send(ctx context.Context, acc *types.MailAccount, msg *OutgoingMessage) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"subject": msg.Subject,
			"body": map[string]string{
				"contentType": "HTML",
				"content":     msg.Body.HTML,
			},
			"toRecipients":      graphRecipients(msg.To),
			"ccRecipients":      graphRecipients(msg.Cc),
			"bccRecipients":     graphRecipients(msg.Bcc),
			"internetMessageId": msg.MessageID,
		},
		"saveToSentItems": false,
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
		return "", fmt.Errorf("outlook send failed: %s", strings.TrimSpace(string(body)))
	}

	// Graph returns 202 with an empty body; the generated Message-ID
	// is the delivery identifier.
	return msg.MessageID, nil
}
