package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brandon/mail-engine/pkg/types"
)

// Config holds the engine configuration.
type Config struct {
	// Record store
	DBPath string

	// Engine policy
	SessionTimeout time.Duration
	SyncLimit      int
	LogLevel       string

	// Optional YAML file seeding accounts and profiles at startup
	AccountsFile string

	// OAuth application credentials for the provider send backends
	GmailClientID       string
	GmailClientSecret   string
	OutlookClientID     string
	OutlookClientSecret string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBPath:              getEnv("DB_PATH", "/data/mailengine.db"),
		SessionTimeout:      time.Duration(getEnvInt("SESSION_TIMEOUT_SECONDS", 20)) * time.Second,
		SyncLimit:           getEnvInt("SYNC_LIMIT", 50),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		AccountsFile:        getEnv("ACCOUNTS_FILE", ""),
		GmailClientID:       getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret:   getEnv("GMAIL_CLIENT_SECRET", ""),
		OutlookClientID:     getEnv("OUTLOOK_CLIENT_ID", ""),
		OutlookClientSecret: getEnv("OUTLOOK_CLIENT_SECRET", ""),
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_SECONDS must be positive")
	}
	if c.SyncLimit < 1 || c.SyncLimit > 1000 {
		return fmt.Errorf("SYNC_LIMIT must be between 1 and 1000")
	}
	return nil
}

// SeedAccount is one account entry of the accounts file.
type SeedAccount struct {
	Name         string `yaml:"name"`
	Owner        string `yaml:"owner"`
	Kind         string `yaml:"kind"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	Address      string `yaml:"address"`
	DisplayName  string `yaml:"display_name"`
	Secret       string `yaml:"secret"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// SeedProfile is one owner profile entry of the accounts file.
type SeedProfile struct {
	Owner         string `yaml:"owner"`
	Signature     string `yaml:"signature"`
	FooterCompany string `yaml:"footer_company"`
	FooterExtra   string `yaml:"footer_extra"`
	FooterWebsite string `yaml:"footer_website"`
	FooterBank    string `yaml:"footer_bank"`
}

// SeedFile is the parsed accounts file.
type SeedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Profiles []SeedProfile `yaml:"profiles"`
}

// LoadSeedFile reads and parses a YAML accounts file.
func LoadSeedFile(path string) (*SeedFile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(buf, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	for i := range seed.Accounts {
		a := &seed.Accounts[i]
		if a.Name == "" || a.Owner == "" || a.Address == "" {
			return nil, fmt.Errorf("account %d: name, owner and address are required", i+1)
		}
		switch types.ProtocolKind(a.Kind) {
		case types.KindIMAP, types.KindGmail, types.KindOutlook:
		default:
			return nil, fmt.Errorf("account %q: unknown kind %q", a.Name, a.Kind)
		}
	}
	return &seed, nil
}

// ToAccount converts a seed entry to a store record.
func (a *SeedAccount) ToAccount() *types.MailAccount {
	return &types.MailAccount{
		OwnerID:      a.Owner,
		Name:         a.Name,
		Kind:         types.ProtocolKind(a.Kind),
		Host:         a.Host,
		Port:         a.Port,
		SMTPHost:     a.SMTPHost,
		SMTPPort:     a.SMTPPort,
		Address:      a.Address,
		DisplayName:  a.DisplayName,
		Secret:       a.Secret,
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
	}
}

// ToProfile converts a seed entry to a store record.
func (p *SeedProfile) ToProfile() *types.Profile {
	return &types.Profile{
		OwnerID:       p.Owner,
		Signature:     p.Signature,
		FooterCompany: p.FooterCompany,
		FooterExtra:   p.FooterExtra,
		FooterWebsite: p.FooterWebsite,
		FooterBank:    p.FooterBank,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a
// default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
