package email

import "strings"

// folderCandidates maps logical folder names to the real folder names
// providers actually use. Candidates are tried in order; the first
// that selects wins.
var folderCandidates = map[string][]string{
	"INBOX": {"INBOX"},
	"SENT": {
		"Sent", "Sent Items", "Sent Messages", "INBOX.Sent",
		"[Gmail]/Sent Mail", "Gesendet", "Gesendete Elemente",
	},
	"DRAFTS": {
		"Drafts", "INBOX.Drafts", "[Gmail]/Drafts", "Entwürfe",
	},
	"TRASH": {
		"Trash", "Deleted Items", "Deleted Messages", "INBOX.Trash",
		"[Gmail]/Trash", "Papierkorb", "Gelöschte Elemente",
	},
	"ARCHIVE": {
		"Archive", "INBOX.Archive", "[Gmail]/All Mail", "Archiv",
	},
	"SPAM": {
		"Junk", "Spam", "Junk E-Mail", "INBOX.Spam", "[Gmail]/Spam",
	},
}

// FolderCandidates resolves a logical folder name to a list of server
// folder names to try. Unknown names are passed through literally.
func FolderCandidates(folder string) []string {
	logical := strings.ToUpper(strings.TrimSpace(folder))
	if candidates, ok := folderCandidates[logical]; ok {
		return candidates
	}
	return []string{folder}
}
