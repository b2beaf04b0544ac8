package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandon/mail-engine/pkg/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/data/mailengine.db", cfg.DBPath)
	require.Equal(t, 20*time.Second, cfg.SessionTimeout)
	require.Equal(t, 50, cfg.SyncLimit)
	require.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("SESSION_TIMEOUT_SECONDS", "5")
	t.Setenv("SYNC_LIMIT", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/tmp/test.db", cfg.DBPath)
	require.Equal(t, 5*time.Second, cfg.SessionTimeout)
	require.Equal(t, 10, cfg.SyncLimit)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{DBPath: "", SessionTimeout: 20 * time.Second, SyncLimit: 50}
	require.Error(t, cfg.Validate())

	cfg = &Config{DBPath: "/tmp/x.db", SessionTimeout: 0, SyncLimit: 50}
	require.Error(t, cfg.Validate())

	cfg = &Config{DBPath: "/tmp/x.db", SessionTimeout: 20 * time.Second, SyncLimit: 5000}
	require.Error(t, cfg.Validate())
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - name: work
    owner: alice
    kind: imap
    host: imap.example.com
    port: 993
    smtp_host: smtp.example.com
    smtp_port: 587
    address: alice@example.com
    display_name: Alice Example
    secret: aHVudGVyMg==
profiles:
  - owner: alice
    signature: |-
      Best,
      Alice
    footer_company: Example GmbH
`), 0o600))

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Accounts, 1)
	require.Len(t, seed.Profiles, 1)

	acc := seed.Accounts[0].ToAccount()
	require.Equal(t, "alice", acc.OwnerID)
	require.Equal(t, types.KindIMAP, acc.Kind)
	require.Equal(t, "smtp.example.com", acc.SMTPHost)

	profile := seed.Profiles[0].ToProfile()
	require.Equal(t, "Best,\nAlice", profile.Signature)
	require.Equal(t, "Example GmbH", profile.FooterCompany)
}

func TestLoadSeedFileRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - name: work
    owner: alice
    kind: pop3
    address: alice@example.com
`), 0o600))

	_, err := LoadSeedFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown kind")
}

func TestLoadSeedFileRejectsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - name: work
    kind: imap
`), 0o600))

	_, err := LoadSeedFile(path)
	require.Error(t, err)
}
