package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
server:
  base_url: http://localhost:8000/
  token: secret
  push_path: /push
state:
  path: /tmp/aioffice/state.db
polling:
  channels: 10s
  activity: 2s
notifications:
  beep: false
log:
  level: debug
  format: json
user:
  id: alice
`

const minimalYAML = `
server:
  base_url: http://127.0.0.1:8000
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.BaseURL != "http://localhost:8000" {
		t.Errorf("Server.BaseURL = %q, want trailing slash trimmed", cfg.Server.BaseURL)
	}
	if cfg.Server.PushPath != "/push" {
		t.Errorf("Server.PushPath = %q, want /push", cfg.Server.PushPath)
	}
	if cfg.Polling.Channels != 10*time.Second {
		t.Errorf("Polling.Channels = %v, want 10s", cfg.Polling.Channels)
	}
	if cfg.Polling.Activity != 2*time.Second {
		t.Errorf("Polling.Activity = %v, want 2s", cfg.Polling.Activity)
	}
	if cfg.Polling.Agents != DefaultAgentsInterval {
		t.Errorf("Polling.Agents = %v, want default %v", cfg.Polling.Agents, DefaultAgentsInterval)
	}
	if cfg.Notifications.BeepEnabled() {
		t.Errorf("BeepEnabled() = true, want false")
	}
	if cfg.User.ID != "alice" {
		t.Errorf("User.ID = %q, want alice", cfg.User.ID)
	}
}

func TestParse_MinimalDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.PushPath != "/ws" {
		t.Errorf("PushPath = %q, want /ws", cfg.Server.PushPath)
	}
	if !cfg.Notifications.BeepEnabled() {
		t.Errorf("BeepEnabled() = false, want default true")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
	if cfg.State.Path == "" {
		t.Errorf("State.Path is empty, want default")
	}
	if cfg.User.ID != "user" {
		t.Errorf("User.ID = %q, want user", cfg.User.ID)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing base url", "log:\n  level: info\n", "server.base_url is required"},
		{"no scheme", "server:\n  base_url: localhost:8000\n", "must include scheme"},
		{"bad level", "server:\n  base_url: http://x\nlog:\n  level: loud\n", "log.level"},
		{"bad push path", "server:\n  base_url: http://x\n  push_path: ws\n", "push_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, func(cfg *Config) { got <- cfg })
	}()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-got:
		if cfg.User.ID != "alice" {
			t.Errorf("reloaded User.ID = %q, want alice", cfg.User.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for reload")
	}
}
