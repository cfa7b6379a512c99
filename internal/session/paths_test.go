package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBaseDirFromEnv(t *testing.T) {
	t.Setenv("GRAVVY_HOME", "/tmp/gravvy-home")
	if got := BaseDir(); got != "/tmp/gravvy-home" {
		t.Errorf("BaseDir() = %q", got)
	}
	if got := ConfigPath(); got != filepath.Join("/tmp/gravvy-home", "config.toml") {
		t.Errorf("ConfigPath() = %q", got)
	}
}

func TestBaseDirDefault(t *testing.T) {
	t.Setenv("GRAVVY_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".gravvy"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{Root: "/data"}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dir", l.Dir("+15551234567"), "/data/accounts/15551234567"},
		{"db", l.DBPath("+15551234567"), "/data/accounts/15551234567/gravvy.db"},
		{"lock", l.LockPath("+15551234567"), "/data/accounts/15551234567/LOCK"},
		{"socket", l.SocketPath("+15551234567"), "/data/accounts/15551234567/daemon.sock"},
		{"log", l.LogPath("+15551234567"), "/data/accounts/15551234567/logs/gravvyd.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestAccountsAreSeparate(t *testing.T) {
	l := Layout{Root: "/data"}
	if l.DBPath("+15550000001") == l.DBPath("+15550000002") {
		t.Error("two accounts share a store path")
	}
}

func TestEnsureDir(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	if err := l.EnsureDir("+15551234567"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(l.LogDir("+15551234567"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("permission = %o, want 0700", perm)
	}
	if !strings.HasPrefix(l.LogDir("+15551234567"), l.Dir("+15551234567")) {
		t.Error("log dir outside account dir")
	}
}
