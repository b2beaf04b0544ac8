package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-engine/internal/config"
	"github.com/brandon/mail-engine/internal/email"
	"github.com/brandon/mail-engine/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if os.Args[1] == "version" {
		fmt.Printf("mailengine version %s\n", version)
		return
	}

	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Initialize record store
	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open record store")
	}
	defer db.Close() //nolint:errcheck
	st := store.NewStore(db, logger)

	// Seed accounts and profiles
	if cfg.AccountsFile != "" {
		seed, err := config.LoadSeedFile(cfg.AccountsFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load accounts file")
		}
		for i := range seed.Accounts {
			if _, err := st.UpsertAccount(seed.Accounts[i].ToAccount()); err != nil {
				logger.WithError(err).WithField("account", seed.Accounts[i].Name).Warn("Failed to seed account")
			}
		}
		for i := range seed.Profiles {
			if err := st.UpsertProfile(seed.Profiles[i].ToProfile()); err != nil {
				logger.WithError(err).WithField("owner", seed.Profiles[i].Owner).Warn("Failed to seed profile")
			}
		}
	}

	manager := email.NewManager(st, email.DialIMAP(cfg.SessionTimeout, logger), email.OAuthConfig{
		GmailClientID:       cfg.GmailClientID,
		GmailClientSecret:   cfg.GmailClientSecret,
		OutlookClientID:     cfg.OutlookClientID,
		OutlookClientSecret: cfg.OutlookClientSecret,
	}, logger)

	if err := run(os.Args[1], os.Args[2:], cfg, st, manager); err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

func run(command string, args []string, cfg *config.Config, st *store.Store, manager *email.Manager) error {
	switch command {
	case "sync":
		fs := flag.NewFlagSet("sync", flag.ExitOnError)
		caller := fs.String("caller", "", "Caller identity (account owner)")
		account := fs.String("account", "", "Account name")
		folder := fs.String("folder", "INBOX", "Logical folder name")
		limit := fs.Int("limit", cfg.SyncLimit, "Maximum messages to fetch")
		fs.Parse(args) //nolint:errcheck

		acc, err := st.GetAccountByName(*account)
		if err != nil {
			return err
		}
		return printJSON(manager.Sync(*caller, acc.ID, *folder, *limit))

	case "fetch-body":
		fs := flag.NewFlagSet("fetch-body", flag.ExitOnError)
		caller := fs.String("caller", "", "Caller identity (account owner)")
		id := fs.Int64("id", 0, "Stored message id")
		uid := fs.Uint("uid", 0, "Optional IMAP UID hint")
		fs.Parse(args) //nolint:errcheck

		recovered, err := manager.FetchBody(*caller, *id, uint32(*uid))
		if err != nil {
			return err
		}
		return printJSON(recovered)

	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		caller := fs.String("caller", "", "Caller identity (account owner)")
		account := fs.String("account", "", "Account name")
		to := fs.String("to", "", "Comma-separated recipients")
		cc := fs.String("cc", "", "Comma-separated Cc recipients")
		bcc := fs.String("bcc", "", "Comma-separated Bcc recipients")
		subject := fs.String("subject", "", "Subject")
		text := fs.String("text", "", "Plain-text body")
		html := fs.String("html", "", "HTML body")
		signature := fs.Bool("signature", false, "Append the owner's signature")
		footer := fs.Bool("footer", false, "Append the owner's footer")
		reply := fs.Bool("reply", false, "Treat the body as a reply with quoted history")
		replyTo := fs.Int64("reply-to", 0, "Stored message id being replied to")
		fs.Parse(args) //nolint:errcheck

		acc, err := st.GetAccountByName(*account)
		if err != nil {
			return err
		}
		id, err := manager.Send(context.Background(), *caller, acc.ID, &email.SendRequest{
			To:               splitList(*to),
			Cc:               splitList(*cc),
			Bcc:              splitList(*bcc),
			Subject:          *subject,
			BodyText:         *text,
			BodyHTML:         *html,
			IncludeSignature: *signature,
			IncludeFooter:    *footer,
			IsReply:          *reply,
			ReplyToMessageID: *replyTo,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"id": id})

	case "search":
		fs := flag.NewFlagSet("search", flag.ExitOnError)
		account := fs.String("account", "", "Account name")
		folder := fs.String("folder", "", "Folder filter")
		sender := fs.String("sender", "", "Sender filter")
		subject := fs.String("subject", "", "Subject filter")
		body := fs.String("body", "", "Full-text body filter")
		limit := fs.Int("limit", 100, "Result limit")
		fs.Parse(args) //nolint:errcheck

		opts := store.SearchOptions{Limit: *limit}
		if *account != "" {
			acc, err := st.GetAccountByName(*account)
			if err != nil {
				return err
			}
			opts.AccountID = &acc.ID
		}
		if *folder != "" {
			opts.Folder = folder
		}
		if *sender != "" {
			opts.Sender = sender
		}
		if *subject != "" {
			opts.Subject = subject
		}
		if *body != "" {
			opts.Body = body
		}
		results, err := st.Search(opts)
		if err != nil {
			return err
		}
		return printJSON(results)

	case "list-folders":
		fs := flag.NewFlagSet("list-folders", flag.ExitOnError)
		caller := fs.String("caller", "", "Caller identity (account owner)")
		account := fs.String("account", "", "Account name")
		fs.Parse(args) //nolint:errcheck

		acc, err := st.GetAccountByName(*account)
		if err != nil {
			return err
		}
		folders, err := manager.ListFolders(*caller, acc.ID)
		if err != nil {
			return err
		}
		return printJSON(folders)

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mailengine <command> [flags]

Commands:
  sync          Synchronize a folder into the record store
  fetch-body    Recover the body of a previously-synced message
  send          Compose and deliver a message
  search        Search stored messages
  list-folders  List the remote folders of an account
  version       Print the version
`)
}
