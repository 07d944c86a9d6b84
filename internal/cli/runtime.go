package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/config"
	"github.com/waharvest/waharvest/internal/creds"
	"github.com/waharvest/waharvest/internal/joinqueue"
	"github.com/waharvest/waharvest/internal/registry"
	"github.com/waharvest/waharvest/internal/secrets"
	"github.com/waharvest/waharvest/internal/supervisor"
)

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func masterKey(cfg *config.Config) []byte {
	key, err := secrets.LoadMasterKey(cfg.Paths.StateDir)
	if err != nil {
		fmt.Printf("⚠️ Credential key unavailable, storing creds unsealed: %v\n", err)
		return nil
	}
	return key
}

// newRegistry wires the standard whatsmeow-backed account registry.
func newRegistry(cfg *config.Config, eb *bus.EventBus) *registry.Registry {
	key := masterKey(cfg)
	factory := func(accountID, dir string) (*supervisor.Supervisor, error) {
		p, err := supervisor.NewWhatsmeowProvider(context.Background(), dir)
		if err != nil {
			return nil, err
		}
		cs := creds.NewStore(dir, creds.Options{
			Key:             key,
			SessionMaxAge:   cfg.Creds.SessionMaxAge,
			BackupEvery:     cfg.Creds.BackupEvery,
			BackupRetention: cfg.Creds.BackupRetention,
		})
		return supervisor.New(accountID, dir, p, cs, eb, cfg.Connection), nil
	}
	return registry.New(cfg.Paths.StateDir, factory)
}

func queueFor(cfg *config.Config, reg *registry.Registry, accountID string, joiner joinqueue.Joiner) *joinqueue.Queue {
	return joinqueue.New(accountID, reg.AccountDir(accountID), joiner, cfg.Queue.JoinDelay)
}

func requireAccount(reg *registry.Registry, accountID string) {
	if !reg.Known(accountID) {
		fmt.Printf("Unknown account: %s (run 'waharvest account list')\n", accountID)
		os.Exit(1)
	}
}
