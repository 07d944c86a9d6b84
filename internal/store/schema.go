package store

import "time"

// MessageRecord is one audited inbound message.
type MessageRecord struct {
	ID         int64     `json:"id"`
	AccountID  string    `json:"account_id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	IsGroup    bool      `json:"is_group"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReplyRule is a persisted auto-reply rule. Trigger semantics are selected
// by Match; higher Priority wins when several rules match the same message.
type ReplyRule struct {
	ID        int64     `json:"id"`
	Match     string    `json:"match"` // contains, exact, prefix, regex
	Pattern   string    `json:"pattern"`
	Response  string    `json:"response"`
	Priority  int       `json:"priority"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	MatchContains = "contains"
	MatchExact    = "exact"
	MatchPrefix   = "prefix"
	MatchRegex    = "regex"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	sender_name TEXT DEFAULT '',
	content TEXT DEFAULT '',
	is_group BOOLEAN NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

CREATE TABLE IF NOT EXISTS reply_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	match TEXT NOT NULL,
	pattern TEXT NOT NULL,
	response TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	enabled BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_reply_rules_enabled ON reply_rules(enabled, priority);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at DATETIME
);
`
