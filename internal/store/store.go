// Package store persists message audit rows, auto-reply rules, and
// key/value settings in a per-deployment SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordMessage appends an inbound message to the audit table.
func (s *Store) RecordMessage(m MessageRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (account_id, chat_id, sender_id, sender_name, content, is_group, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.AccountID, m.ChatID, m.SenderID, m.SenderName, m.Content, m.IsGroup, m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages for an account, newest first.
func (s *Store) RecentMessages(accountID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, account_id, chat_id, sender_id, sender_name, content, is_group, timestamp
		FROM messages WHERE account_id = ?
		ORDER BY timestamp DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.ID, &m.AccountID, &m.ChatID, &m.SenderID,
			&m.SenderName, &m.Content, &m.IsGroup, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddRule inserts a reply rule and returns its id.
func (s *Store) AddRule(r ReplyRule) (int64, error) {
	switch r.Match {
	case MatchContains, MatchExact, MatchPrefix, MatchRegex:
	default:
		return 0, fmt.Errorf("unknown match type %q", r.Match)
	}
	res, err := s.db.Exec(`
		INSERT INTO reply_rules (match, pattern, response, priority, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Match, r.Pattern, r.Response, r.Priority, r.Enabled, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to add rule: %w", err)
	}
	return res.LastInsertId()
}

// EnabledRules returns active rules ordered by descending priority, then id.
func (s *Store) EnabledRules() ([]ReplyRule, error) {
	rows, err := s.db.Query(`
		SELECT id, match, pattern, response, priority, enabled, created_at
		FROM reply_rules WHERE enabled = 1
		ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// AllRules returns every rule, enabled or not.
func (s *Store) AllRules() ([]ReplyRule, error) {
	rows, err := s.db.Query(`
		SELECT id, match, pattern, response, priority, enabled, created_at
		FROM reply_rules ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRules(rows *sql.Rows) ([]ReplyRule, error) {
	var out []ReplyRule
	for rows.Next() {
		var r ReplyRule
		if err := rows.Scan(&r.ID, &r.Match, &r.Pattern, &r.Response,
			&r.Priority, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRuleEnabled flips a rule on or off.
func (s *Store) SetRuleEnabled(id int64, enabled bool) error {
	res, err := s.db.Exec(`UPDATE reply_rules SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

// DeleteRule removes a rule permanently.
func (s *Store) DeleteRule(id int64) error {
	res, err := s.db.Exec(`DELETE FROM reply_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

// GetSetting reads a settings value. Missing keys return "".
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}
