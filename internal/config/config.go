// Package config provides configuration types and loading for waharvest.
package config

import "time"

// Config is the root configuration struct.
type Config struct {
	Paths      PathsConfig      `json:"paths"`
	Connection ConnectionConfig `json:"connection"`
	Queue      QueueConfig      `json:"queue"`
	Creds      CredsConfig      `json:"creds"`
	AutoReply  AutoReplyConfig  `json:"autoReply"`
	Export     ExportConfig     `json:"export"`
	Notify     NotifyConfig     `json:"notify"`
}

// PathsConfig groups filesystem path settings. StateDir is the root under
// which per-account credential, queue, report and link files live.
type PathsConfig struct {
	StateDir string `json:"stateDir" envconfig:"STATE_DIR"`
}

// ConnectionConfig groups connection lifecycle settings.
type ConnectionConfig struct {
	ReconnectDelay time.Duration `json:"reconnectDelay" envconfig:"RECONNECT_DELAY"`
	// ReconnectMaxRetries caps scheduled reconnect attempts per disconnect.
	// Zero means retry indefinitely, matching the platform's expectation
	// that a companion account stays attached.
	ReconnectMaxRetries uint64        `json:"reconnectMaxRetries" envconfig:"RECONNECT_MAX_RETRIES"`
	SendTimeout         time.Duration `json:"sendTimeout" envconfig:"SEND_TIMEOUT"`
	BulkSendDelay       time.Duration `json:"bulkSendDelay" envconfig:"BULK_SEND_DELAY"`
}

// QueueConfig groups group-join queue settings.
type QueueConfig struct {
	JoinDelay     time.Duration `json:"joinDelay" envconfig:"JOIN_DELAY"`
	PendingExpiry time.Duration `json:"pendingExpiry" envconfig:"PENDING_EXPIRY"`
}

// CredsConfig groups credential store settings.
type CredsConfig struct {
	SessionMaxAge   time.Duration `json:"sessionMaxAge" envconfig:"SESSION_MAX_AGE"`
	BackupRetention int           `json:"backupRetention" envconfig:"BACKUP_RETENTION"`
	BackupEvery     int           `json:"backupEvery" envconfig:"BACKUP_EVERY"`
}

// AutoReplyConfig groups auto-replier settings.
type AutoReplyConfig struct {
	Enabled  bool          `json:"enabled" envconfig:"ENABLED"`
	Cooldown time.Duration `json:"cooldown" envconfig:"COOLDOWN"`
}

// ExportConfig groups the optional Kafka link-record export.
type ExportConfig struct {
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	TopicPrefix  string `json:"topicPrefix" envconfig:"TOPIC_PREFIX"`
}

// NotifyConfig groups the operator notifier settings.
type NotifyConfig struct {
	SlackToken   string `json:"slackToken" envconfig:"SLACK_TOKEN"`
	SlackChannel string `json:"slackChannel" envconfig:"SLACK_CHANNEL"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir: "~/.waharvest",
		},
		Connection: ConnectionConfig{
			ReconnectDelay:      5 * time.Second,
			ReconnectMaxRetries: 0,
			SendTimeout:         30 * time.Second,
			BulkSendDelay:       2 * time.Second,
		},
		Queue: QueueConfig{
			JoinDelay:     2 * time.Minute,
			PendingExpiry: 24 * time.Hour,
		},
		Creds: CredsConfig{
			SessionMaxAge:   30 * 24 * time.Hour,
			BackupRetention: 10,
			BackupEvery:     10,
		},
		AutoReply: AutoReplyConfig{
			Enabled:  false,
			Cooldown: 30 * time.Second,
		},
		Export: ExportConfig{
			TopicPrefix: "waharvest",
		},
	}
}
