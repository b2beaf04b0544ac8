package email

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/brandon/mail-engine/pkg/types"
)

// ErrCredential marks a missing or malformed account credential.
var ErrCredential = errors.New("invalid account credential")

// DecodeSecret decodes the account's opaque credential blob into a
// plaintext secret. Failures are reported explicitly; a broken blob
// must never be treated as an empty password.
func DecodeSecret(acc *types.MailAccount) (string, error) {
	blob := strings.TrimSpace(acc.Secret)
	if blob == "" {
		return "", fmt.Errorf("%w: account %q has no stored secret", ErrCredential, acc.Name)
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: account %q: %v", ErrCredential, acc.Name, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: account %q: decoded secret is empty", ErrCredential, acc.Name)
	}
	return string(raw), nil
}
