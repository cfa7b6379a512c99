package session

import (
	"os"
	"path/filepath"
	"strings"
)

// BaseDir returns $GRAVVY_HOME, or ~/.gravvy.
func BaseDir() string {
	if dir := os.Getenv("GRAVVY_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gravvy")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Layout places per-account files under Root. Every signed-in phone number
// gets its own directory, so two accounts never share a store.
type Layout struct {
	Root string
}

// DefaultLayout returns the layout rooted at BaseDir.
func DefaultLayout() Layout {
	return Layout{Root: BaseDir()}
}

// AccountKey turns an E.164 phone number into a directory name.
func AccountKey(phone string) string {
	return strings.TrimPrefix(phone, "+")
}

// Dir returns the account directory.
func (l Layout) Dir(phone string) string {
	return filepath.Join(l.Root, "accounts", AccountKey(phone))
}

// DBPath returns the entity store path.
func (l Layout) DBPath(phone string) string {
	return filepath.Join(l.Dir(phone), "gravvy.db")
}

// LockPath returns the lock file path.
func (l Layout) LockPath(phone string) string {
	return filepath.Join(l.Dir(phone), "LOCK")
}

// SocketPath returns the daemon's Unix socket path.
func (l Layout) SocketPath(phone string) string {
	return filepath.Join(l.Dir(phone), "daemon.sock")
}

// LogDir returns the log directory.
func (l Layout) LogDir(phone string) string {
	return filepath.Join(l.Dir(phone), "logs")
}

// LogPath returns the daemon log file path.
func (l Layout) LogPath(phone string) string {
	return filepath.Join(l.LogDir(phone), "gravvyd.log")
}

// EnsureDir creates the account directory tree with owner-only permissions.
func (l Layout) EnsureDir(phone string) error {
	for _, d := range []string{l.Dir(phone), l.LogDir(phone)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
