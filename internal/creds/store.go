package creds

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/waharvest/waharvest/internal/secrets"
)

const (
	credsFileName = "creds.json"
	backupDirName = "backups"
	archiveDir    = "archive"
	stampLayout   = "20060102-150405.000000000"
)

// Options configures a Store.
type Options struct {
	// Key seals envelopes at rest when non-nil.
	Key []byte
	// SessionMaxAge marks older envelopes stale (default 30 days).
	SessionMaxAge time.Duration
	// BackupEvery triggers a rotating backup every Nth save (default 10).
	BackupEvery int
	// BackupRetention bounds the number of kept backups (default 10).
	BackupRetention int
}

// Store persists one account's credential envelope. It is the single
// writer for that account's creds file; all mutation goes through Save.
type Store struct {
	dir       string
	opts      Options
	mu        sync.Mutex
	current   *Envelope
	saveCount int
}

// NewStore creates a credential store rooted at dir.
func NewStore(dir string, opts Options) *Store {
	if opts.SessionMaxAge <= 0 {
		opts.SessionMaxAge = 30 * 24 * time.Hour
	}
	if opts.BackupEvery <= 0 {
		opts.BackupEvery = 10
	}
	if opts.BackupRetention <= 0 {
		opts.BackupRetention = 10
	}
	return &Store{dir: dir, opts: opts}
}

func (s *Store) credsPath() string {
	return filepath.Join(s.dir, credsFileName)
}

// Load returns the persisted envelope, synthesizing and persisting a fresh
// one when none exists, the existing one fails validation, or the sealed
// content cannot be opened. Credential corruption is never fatal.
func (s *Store) Load() (*Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read()
	if err != nil {
		slog.Warn("credential envelope unusable, starting fresh", "dir", s.dir, "error", err)
		env = nil
	}
	if env != nil && !env.Valid() {
		slog.Warn("credential envelope failed validation, starting fresh", "dir", s.dir)
		env = nil
	}
	if env == nil {
		env = NewEnvelope()
		if err := s.write(env); err != nil {
			return nil, fmt.Errorf("persist fresh envelope: %w", err)
		}
	}
	s.current = env
	return env, nil
}

func (s *Store) read() (*Envelope, error) {
	data, err := os.ReadFile(s.credsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	plain, err := secrets.OpenWithKey(data, s.opts.Key)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Save writes the envelope atomically (tmp file + rename) and triggers a
// rotating backup every Nth save.
func (s *Store) Save(env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env.LastUsed = time.Now()
	if err := s.write(env); err != nil {
		return err
	}
	s.current = env
	s.saveCount++
	if s.saveCount%s.opts.BackupEvery == 0 {
		if err := s.backup(); err != nil {
			slog.Warn("credential backup failed", "dir", s.dir, "error", err)
		}
	}
	return nil
}

func (s *Store) write(env *Envelope) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	if s.opts.Key != nil {
		if data, err = secrets.SealWithKey(data, s.opts.Key); err != nil {
			return err
		}
	}
	tmp := s.credsPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.credsPath())
}

// HasValidSession reports whether a structurally valid, non-stale envelope
// is on disk.
func (s *Store) HasValidSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := s.read()
	if err != nil || env == nil {
		return false
	}
	return env.Valid() && !env.Stale(s.opts.SessionMaxAge)
}

// Backup copies the current creds file into a timestamped backup and prunes
// old backups beyond the retention count.
func (s *Store) Backup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backup()
}

func (s *Store) backup() error {
	data, err := os.ReadFile(s.credsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	dir := filepath.Join(s.dir, backupDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	name := fmt.Sprintf("creds-%s.json", time.Now().Format(stampLayout))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return err
	}
	return s.cleanup()
}

// cleanup retains only the most recent backups, deleting older ones
// oldest-first. The timestamped names sort lexicographically by age.
func (s *Store) cleanup() error {
	dir := filepath.Join(s.dir, backupDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > s.opts.BackupRetention {
		if err := os.Remove(filepath.Join(dir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}

// Archive takes a rotating backup, then moves the current creds file to a
// timestamped archive path and clears in-memory state. Used on logout; a
// subsequent Load starts fresh.
func (s *Store) Archive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.saveCount = 0
	if _, err := os.Stat(s.credsPath()); os.IsNotExist(err) {
		return nil
	}
	if err := s.backup(); err != nil {
		slog.Warn("credential backup before archive failed", "dir", s.dir, "error", err)
	}
	dir := filepath.Join(s.dir, archiveDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	name := fmt.Sprintf("creds-%s.json", time.Now().Format(stampLayout))
	return os.Rename(s.credsPath(), filepath.Join(dir, name))
}

// Current returns the last loaded or saved envelope, or nil.
func (s *Store) Current() *Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// BackupCount returns the number of retained backups.
func (s *Store) BackupCount() int {
	entries, err := os.ReadDir(filepath.Join(s.dir, backupDirName))
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}
