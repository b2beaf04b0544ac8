package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/brandon/mail-engine/pkg/types"
)

// SearchOptions contains search parameters.
type SearchOptions struct {
	AccountID *int64
	Folder    *string
	Sender    *string
	Recipient *string
	Subject   *string
	Body      *string
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
}

// Search queries stored messages with flexible filters. Body filtering
// uses the FTS5 index; everything else is LIKE/range matching.
func (s *Store) Search(opts SearchOptions) ([]types.MessageSummary, error) {
	var conditions []string
	var args []interface{}

	if opts.AccountID != nil {
		conditions = append(conditions, "m.account_id = ?")
		args = append(args, *opts.AccountID)
	}

	if opts.Folder != nil {
		conditions = append(conditions, "m.folder = ?")
		args = append(args, strings.ToUpper(*opts.Folder))
	}

	if opts.Sender != nil {
		conditions = append(conditions, "(m.sender_email LIKE ? OR m.sender_name LIKE ?)")
		searchTerm := "%" + *opts.Sender + "%"
		args = append(args, searchTerm, searchTerm)
	}

	if opts.Recipient != nil {
		conditions = append(conditions, "m.recipients LIKE ?")
		args = append(args, "%"+*opts.Recipient+"%")
	}

	if opts.Subject != nil {
		conditions = append(conditions, "m.subject LIKE ?")
		args = append(args, "%"+*opts.Subject+"%")
	}

	if opts.DateFrom != nil {
		conditions = append(conditions, "m.received_at >= ?")
		args = append(args, formatTime(*opts.DateFrom))
	}

	if opts.DateTo != nil {
		conditions = append(conditions, "m.received_at <= ?")
		args = append(args, formatTime(*opts.DateTo))
	}

	if opts.Body != nil {
		conditions = append(conditions, "m.id IN (SELECT rowid FROM messages_fts WHERE messages_fts MATCH ?)")
		// Escape special characters for FTS5
		bodyQuery := strings.ReplaceAll(*opts.Body, "\"", "\"\"")
		bodyQuery = strings.ReplaceAll(bodyQuery, "'", "''")
		args = append(args, bodyQuery)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.account_id, m.folder, m.subject, m.sender_name, m.sender_email, m.received_at, m.snippet
		FROM messages m
		%s
		ORDER BY m.received_at DESC
		LIMIT ?
	`, whereClause)

	args = append(args, limit)

	rows, err := s.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var results []types.MessageSummary
	for rows.Next() {
		var summary types.MessageSummary
		var subject, senderName, senderEmail, snippet sql.NullString
		var receivedAt string

		err := rows.Scan(
			&summary.ID,
			&summary.AccountID,
			&summary.Folder,
			&subject,
			&senderName,
			&senderEmail,
			&receivedAt,
			&snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		summary.Subject = subject.String
		summary.SenderName = senderName.String
		summary.SenderEmail = senderEmail.String
		summary.Snippet = snippet.String
		summary.ReceivedAt = parseTime(receivedAt)
		results = append(results, summary)
	}

	return results, rows.Err()
}
