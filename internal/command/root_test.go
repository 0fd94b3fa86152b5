package command

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/spf13/cobra"
)

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommandVersion(t *testing.T) {
	cmd := NewRootCmd("test")

	output, err := executeCommand(cmd, "--version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.Contains(output, "aioffice version test") {
		t.Fatalf("expected version output, got %q", output)
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewRootCmd("test")
	want := []string{"chat", "channels", "post", "unread", "create", "spec", "layout", "providers", "state"}
	for _, name := range want {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found == cmd {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv(serverEnv, "")

	t.Run("missing default without server", func(t *testing.T) {
		_, _, err := loadConfig("", "")
		if err == nil || !strings.Contains(err.Error(), "pass --server") {
			t.Fatalf("loadConfig() err = %v, want hint about --server", err)
		}
	})

	t.Run("missing default with server", func(t *testing.T) {
		cfg, path, err := loadConfig("", "http://office.test/")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if path != "" {
			t.Errorf("path = %q, want empty", path)
		}
		if cfg.Server.BaseURL != "http://office.test" {
			t.Errorf("BaseURL = %q, want %q", cfg.Server.BaseURL, "http://office.test")
		}
	})

	t.Run("server from environment", func(t *testing.T) {
		t.Setenv(serverEnv, "http://env.test")
		cfg, _, err := loadConfig("", "")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Server.BaseURL != "http://env.test" {
			t.Errorf("BaseURL = %q, want %q", cfg.Server.BaseURL, "http://env.test")
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), "http://office.test")
		if err == nil {
			t.Fatal("expected error for missing explicit config")
		}
	})

	t.Run("flag overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "server:\n  base_url: http://file.test\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, got, err := loadConfig(path, "http://flag.test/")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if got != path {
			t.Errorf("path = %q, want %q", got, path)
		}
		if cfg.Server.BaseURL != "http://flag.test" {
			t.Errorf("BaseURL = %q, want %q", cfg.Server.BaseURL, "http://flag.test")
		}
	})
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", fmt.Errorf("channel required"), "channel required"},
		{"server detail", apperr.Server("GET /api/x", 500, "database locked"), "database locked"},
		{"network", apperr.Network("GET /api/x", errors.New("dial tcp: connection refused")), "Could not reach the AI Office server."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorText(tt.err); got != tt.want {
				t.Errorf("errorText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteCommandError(t *testing.T) {
	cmd := &cobra.Command{}
	buf := new(bytes.Buffer)
	cmd.SetErr(buf)

	cause := apperr.Network("GET /api/channels", errors.New("connection refused"))
	err := writeCommandError(cmd, cause)

	var reported reportedError
	if !errors.As(err, &reported) {
		t.Fatalf("writeCommandError() = %T, want reportedError", err)
	}
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Errorf("reported error lost its kind")
	}
	out := buf.String()
	if !strings.Contains(out, "Error: Could not reach") {
		t.Errorf("output = %q, want error line", out)
	}
	if !strings.Contains(out, "Hint:") {
		t.Errorf("output = %q, want hint for network error", out)
	}
}

func TestArgumentErrorsAreNotReported(t *testing.T) {
	cmd := NewRootCmd("test")
	_, err := executeCommand(cmd, "post")
	if err == nil {
		t.Fatal("expected argument error")
	}
	var reported reportedError
	if errors.As(err, &reported) {
		t.Errorf("argument error was marked reported; Execute would not print it")
	}
}
