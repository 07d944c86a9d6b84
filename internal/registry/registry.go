// Package registry is the process-wide account table: the durable list of
// provisioned accounts and the live map from account id to its supervisor.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waharvest/waharvest/internal/supervisor"
)

const registryFile = "accounts.json"

// Account is one provisioned companion account.
type Account struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type registryState struct {
	Accounts []Account `json:"accounts"`
}

// Factory builds a supervisor for an account rooted at dir. Injected so
// the registry stays independent of the concrete connection provider.
type Factory func(accountID, dir string) (*supervisor.Supervisor, error)

// Registry owns the id→supervisor mapping. It is the only process-wide
// mutable state; everything else is per-account.
type Registry struct {
	stateDir string
	factory  Factory

	mu   sync.RWMutex
	sups map[string]*supervisor.Supervisor
}

// New creates a registry rooted at stateDir.
func New(stateDir string, factory Factory) *Registry {
	return &Registry{
		stateDir: stateDir,
		factory:  factory,
		sups:     make(map[string]*supervisor.Supervisor),
	}
}

// AccountDir is the per-account state directory.
func (r *Registry) AccountDir(accountID string) string {
	return filepath.Join(r.stateDir, "accounts", accountID)
}

// Provision registers a new account and creates its state directory.
func (r *Registry) Provision() (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct := Account{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	st := r.load()
	st.Accounts = append(st.Accounts, acct)
	if err := r.store(st); err != nil {
		return Account{}, fmt.Errorf("failed to persist registry: %w", err)
	}
	if err := os.MkdirAll(r.AccountDir(acct.ID), 0o700); err != nil {
		return Account{}, fmt.Errorf("failed to create account dir: %w", err)
	}
	slog.Info("account provisioned", "account", acct.ID)
	return acct, nil
}

// List returns all registered accounts.
func (r *Registry) List() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load().Accounts
}

// Known reports whether an account id is registered.
func (r *Registry) Known(accountID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.load().Accounts {
		if a.ID == accountID {
			return true
		}
	}
	return false
}

// Get returns the live supervisor for an account, building it on first
// access. At most one supervisor exists per account.
func (r *Registry) Get(accountID string) (*supervisor.Supervisor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sups[accountID]; ok {
		return s, nil
	}
	found := false
	for _, a := range r.load().Accounts {
		if a.ID == accountID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}
	s, err := r.factory(accountID, r.AccountDir(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to build supervisor for %s: %w", accountID, err)
	}
	r.sups[accountID] = s
	return s, nil
}

// Remove deregisters an account and releases its supervisor. On-disk
// account state is left in place; only the registration is dropped.
func (r *Registry) Remove(accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.load()
	kept := st.Accounts[:0]
	found := false
	for _, a := range st.Accounts {
		if a.ID == accountID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return fmt.Errorf("unknown account %s", accountID)
	}
	st.Accounts = kept
	if err := r.store(st); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	if s, ok := r.sups[accountID]; ok {
		s.Close()
		delete(r.sups, accountID)
	}
	slog.Info("account removed", "account", accountID)
	return nil
}

// CloseAll releases every live supervisor, for process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sups {
		s.Close()
		delete(r.sups, id)
	}
}

func (r *Registry) path() string {
	return filepath.Join(r.stateDir, registryFile)
}

func (r *Registry) load() registryState {
	var st registryState
	data, err := os.ReadFile(r.path())
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("registry file unreadable, starting empty", "error", err)
		}
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("registry file corrupt, starting empty", "error", err)
		return registryState{}
	}
	return st
}

func (r *Registry) store(st registryState) error {
	if err := os.MkdirAll(r.stateDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.path())
}
