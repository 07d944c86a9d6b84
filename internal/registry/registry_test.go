package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/config"
	"github.com/waharvest/waharvest/internal/creds"
	"github.com/waharvest/waharvest/internal/supervisor"
)

type nullProvider struct{ handler func(supervisor.Event) }

func (n *nullProvider) HasSession() bool                  { return false }
func (n *nullProvider) SetHandler(h func(supervisor.Event)) { n.handler = h }
func (n *nullProvider) Connect(ctx context.Context) error { return nil }
func (n *nullProvider) Disconnect()                       {}
func (n *nullProvider) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	return "", nil
}
func (n *nullProvider) JoinGroup(ctx context.Context, code string) (string, error) {
	return "", nil
}
func (n *nullProvider) SendText(ctx context.Context, chatID, text string) error { return nil }
func (n *nullProvider) Logout(ctx context.Context) error                        { return nil }

func newTestRegistry(t *testing.T) (*Registry, *int32) {
	t.Helper()
	var built int32
	eb := bus.NewEventBus()
	cfg := config.ConnectionConfig{
		ReconnectDelay: time.Millisecond,
		SendTimeout:    time.Second,
		BulkSendDelay:  time.Millisecond,
	}
	factory := func(accountID, dir string) (*supervisor.Supervisor, error) {
		atomic.AddInt32(&built, 1)
		cs := creds.NewStore(dir, creds.Options{})
		return supervisor.New(accountID, dir, &nullProvider{}, cs, eb, cfg), nil
	}
	return New(t.TempDir(), factory), &built
}

func TestProvisionListRemove(t *testing.T) {
	r, _ := newTestRegistry(t)

	a, err := r.Provision()
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Fatalf("account = %+v", a)
	}
	if _, err := os.Stat(r.AccountDir(a.ID)); err != nil {
		t.Fatalf("account dir missing: %v", err)
	}

	b, err := r.Provision()
	if err != nil {
		t.Fatal(err)
	}
	if got := r.List(); len(got) != 2 {
		t.Fatalf("List = %v", got)
	}
	if !r.Known(a.ID) || !r.Known(b.ID) {
		t.Fatal("provisioned accounts unknown")
	}

	if err := r.Remove(a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if r.Known(a.ID) {
		t.Fatal("removed account still known")
	}
	if err := r.Remove(a.ID); err == nil {
		t.Fatal("expected error removing twice")
	}
}

func TestGetBuildsSupervisorOnce(t *testing.T) {
	r, built := newTestRegistry(t)
	a, err := r.Provision()
	if err != nil {
		t.Fatal(err)
	}

	s1, err := r.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	s2, err := r.Get(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Fatal("Get returned distinct supervisors for one account")
	}
	if got := atomic.LoadInt32(built); got != 1 {
		t.Fatalf("factory ran %d times, want 1", got)
	}

	if _, err := r.Get("no-such-account"); err == nil {
		t.Fatal("expected error for unknown account")
	}
}

func TestRegistryFileFormat(t *testing.T) {
	r, _ := newTestRegistry(t)
	a, err := r.Provision()
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(r.stateDir, registryFile))
	if err != nil {
		t.Fatalf("registry file: %v", err)
	}
	var st struct {
		Accounts []struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(st.Accounts) != 1 || st.Accounts[0].ID != a.ID {
		t.Fatalf("persisted = %+v", st)
	}
}

func TestCorruptRegistryStartsEmpty(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := os.MkdirAll(r.stateDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(r.stateDir, registryFile), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := r.List(); len(got) != 0 {
		t.Fatalf("List from corrupt file = %v", got)
	}
	if _, err := r.Provision(); err != nil {
		t.Fatalf("Provision after corruption: %v", err)
	}
}
