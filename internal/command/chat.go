package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adamavenir/aioffice/internal/chat"
	"github.com/adamavenir/aioffice/internal/logger"
	"github.com/spf13/cobra"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [channel]",
		Short: "Open the terminal workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			logFile, err := openChatLog(ctx.Config.Log.File, ctx.Config.State.Path)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer logFile.Close()
			logger.Setup(ctx.Config.Log, logFile)

			channel, _ := ctx.Channel(args)

			ws := ctx.Workspace()
			defer ws.Close()

			if ctx.ConfigPath != "" {
				watchCtx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				go func() {
					_ = ws.WatchConfig(watchCtx, ctx.ConfigPath)
				}()
			}

			return chat.Run(chat.Options{
				Workspace: ws,
				Channel:   channel,
				Title:     "AI Office",
			})
		},
	}

	return cmd
}

// openChatLog opens the log file used while the terminal UI owns stdout.
// It defaults to chat.log next to the state store.
func openChatLog(path, statePath string) (io.WriteCloser, error) {
	if path == "" {
		path = filepath.Join(filepath.Dir(statePath), "chat.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return f, nil
}
