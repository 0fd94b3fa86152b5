package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/config"
	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/logger"
	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/adamavenir/aioffice/internal/workspace"
	"github.com/spf13/cobra"
)

// serverEnv names the environment variable consulted when no config file
// exists.
const serverEnv = "AIOFFICE_SERVER"

// CommandContext provides shared command resources.
type CommandContext struct {
	Config     *config.Config
	ConfigPath string
	Client     *api.Client
	Store      *kv.Store
	JSONMode   bool
	ChannelID  string
}

// GetContext loads configuration and opens the client and state store.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	configPath, _ := cmd.Flags().GetString("config")
	server, _ := cmd.Flags().GetString("server")
	jsonMode, _ := cmd.Flags().GetBool("json")
	channel, _ := cmd.Flags().GetString("in")

	cfg, path, err := loadConfig(configPath, server)
	if err != nil {
		return nil, err
	}

	logger.Setup(cfg.Log, cmd.ErrOrStderr())

	client, err := api.NewClient(cfg.Server.BaseURL, cfg.Server.Token)
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(cfg.State.Path)
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Config:     cfg,
		ConfigPath: path,
		Client:     client,
		Store:      store,
		JSONMode:   jsonMode,
		ChannelID:  strings.TrimPrefix(strings.TrimSpace(channel), "#"),
	}, nil
}

// loadConfig reads the config file. A missing file is tolerated when a
// server URL comes from --server or the environment.
func loadConfig(path, server string) (*config.Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}
	if server == "" {
		server = os.Getenv(serverEnv)
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
		if server != "" {
			cfg.Server.BaseURL = strings.TrimRight(server, "/")
		}
		return cfg, path, nil
	case errors.Is(err, fs.ErrNotExist) && !explicit && server != "":
		return config.Default(server), "", nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return nil, "", fmt.Errorf("no config at %s; create one or pass --server", path)
	}
	return nil, "", err
}

// Close releases the state store.
func (c *CommandContext) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// Workspace opens a live workspace over the context's client and store.
func (c *CommandContext) Workspace() *workspace.Workspace {
	return workspace.Open(c.Config, workspace.Options{
		Client: c.Client,
		Store:  c.Store,
		Dialer: stream.WSDialer{Token: c.Config.Server.Token},
	})
}

// Channel returns the --in channel or the first argument.
func (c *CommandContext) Channel(args []string) (string, error) {
	if c.ChannelID != "" {
		return c.ChannelID, nil
	}
	if len(args) > 0 {
		if ch := strings.TrimPrefix(strings.TrimSpace(args[0]), "#"); ch != "" {
			return ch, nil
		}
	}
	return "", fmt.Errorf("channel required (pass it as an argument or with --in)")
}
