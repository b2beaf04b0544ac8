package email

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/internal/store"
	"github.com/brandon/mail-engine/pkg/types"
)

// oauthTransport carries the pieces shared by the OAuth provider
// backends: HTTP client, application credentials, and the single
// refresh-then-retry policy for expired access tokens.
type oauthTransport struct {
	store        *store.Store
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *logrus.Logger
}

// refreshAccessToken exchanges the stored refresh token once and
// persists the result. Concurrent refreshes race last-write-wins.
func (o *oauthTransport) refreshAccessToken(ctx context.Context, acc *types.MailAccount) (string, error) {
	if acc.RefreshToken == "" {
		return "", fmt.Errorf("%w: account %q has no refresh token", ErrCredential, acc.Name)
	}

	form := url.Values{
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"refresh_token": {acc.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh failed: %s", strings.TrimSpace(string(body)))
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("token refresh returned malformed response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token refresh returned no access token")
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = acc.RefreshToken
	}
	var expiry *time.Time
	if token.ExpiresIn > 0 {
		e := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
		expiry = &e
	}

	if err := o.store.SetTokens(acc.ID, token.AccessToken, refreshToken, expiry); err != nil {
		o.logger.WithError(err).WithField("account", acc.Name).Warn("Failed to persist refreshed tokens")
	}
	acc.AccessToken = token.AccessToken
	acc.RefreshToken = refreshToken
	acc.TokenExpiry = expiry

	o.logger.WithField("account", acc.Name).Info("Access token refreshed")
	return token.AccessToken, nil
}

// postJSON issues one bearer-authenticated POST and returns the status
// code and response body.
func (o *oauthTransport) postJSON(ctx context.Context, endpoint, token string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}
