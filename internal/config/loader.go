package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default state directory name.
	ConfigDir = ".waharvest"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("WAHARVEST_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return expandTilde(explicit, home), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("WAHARVEST_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return expandTilde(h, base), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

func expandTilde(path, home string) string {
	switch {
	case path == "~":
		return home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, path[2:])
	default:
		return path
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults. Missing or unreadable files fall
// back to defaults rather than failing the caller.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		resolved := substituteEnv(string(data))
		if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	envconfig.Process("WAHARVEST_PATHS", &cfg.Paths)
	envconfig.Process("WAHARVEST_CONNECTION", &cfg.Connection)
	envconfig.Process("WAHARVEST_QUEUE", &cfg.Queue)
	envconfig.Process("WAHARVEST_CREDS", &cfg.Creds)
	envconfig.Process("WAHARVEST_AUTOREPLY", &cfg.AutoReply)
	envconfig.Process("WAHARVEST_EXPORT", &cfg.Export)
	envconfig.Process("WAHARVEST_NOTIFY", &cfg.Notify)

	if strings.HasPrefix(cfg.Paths.StateDir, "~") {
		if home, err := resolveHomeDir(); err == nil {
			cfg.Paths.StateDir = expandTilde(cfg.Paths.StateDir, home)
		}
	}

	if cfg.Creds.BackupRetention <= 0 {
		cfg.Creds.BackupRetention = 10
	}
	if cfg.Creds.BackupEvery <= 0 {
		cfg.Creds.BackupEvery = 10
	}
	if cfg.Connection.ReconnectDelay <= 0 {
		cfg.Connection.ReconnectDelay = DefaultConfig().Connection.ReconnectDelay
	}
	if cfg.Queue.JoinDelay <= 0 {
		cfg.Queue.JoinDelay = DefaultConfig().Queue.JoinDelay
	}
	if cfg.Queue.PendingExpiry <= 0 {
		cfg.Queue.PendingExpiry = DefaultConfig().Queue.PendingExpiry
	}
	if cfg.Creds.SessionMaxAge <= 0 {
		cfg.Creds.SessionMaxAge = DefaultConfig().Creds.SessionMaxAge
	}

	return cfg, nil
}

// substituteEnv replaces ${VAR} references in raw config text with the
// corresponding environment values, leaving unknown references intact.
func substituteEnv(raw string) string {
	return envPattern.ReplaceAllStringFunc(raw, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		if value, ok := os.LookupEnv(parts[1]); ok {
			return value
		}
		return match
	})
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// AccountDir returns the state directory for one account, creating it if
// needed.
func AccountDir(stateDir, accountID string) (string, error) {
	dir := filepath.Join(stateDir, "accounts", accountID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
