package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/spf13/cobra"
)

// postTimeout bounds connecting and waiting for the echo.
const postTimeout = 30 * time.Second

// NewPostCmd creates the post command.
func NewPostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post [channel] <message>",
		Short: "Post a message to a channel",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			channel, text, err := postTarget(ctx.ChannelID, args)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			replyTo, _ := cmd.Flags().GetInt64("reply-to")
			files, _ := cmd.Flags().GetStringSlice("file")

			ctrl := stream.NewController(stream.Options{
				Backend:  ctx.Client,
				Dialer:   stream.WSDialer{Token: ctx.Config.Server.Token},
				BaseURL:  ctx.Client.BaseURL(),
				PushPath: ctx.Config.Server.PushPath,
				ActorID:  ctx.Config.User.ID,
			})
			defer ctrl.Close()

			runCtx, cancel := context.WithTimeout(cmd.Context(), postTimeout)
			defer cancel()

			if err := ctrl.SetChannel(runCtx, channel); err != nil {
				return writeCommandError(cmd, err)
			}
			if err := ctrl.WaitConnected(runCtx); err != nil {
				return writeCommandError(cmd, fmt.Errorf("push link to #%s did not open: %w", channel, err))
			}

			err = ctrl.UpdateComposer(func(c *stream.Composer) error {
				if replyTo > 0 {
					c.ReplyTo = &replyTo
				}
				for _, path := range files {
					a, err := stream.FileAttachment(path)
					if err != nil {
						return err
					}
					if err := c.AddAttachments(a); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}

			msg, err := ctrl.SendComposed(runCtx, text)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd, msg)
			}
			formatMessage(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	cmd.Flags().Int64("reply-to", 0, "reply to message id")
	cmd.Flags().StringSlice("file", nil, "attach a file (repeatable)")

	return cmd
}

// postTarget splits args into channel and message text. With --in the
// single argument is the message.
func postTarget(in string, args []string) (string, string, error) {
	var channel, text string
	switch {
	case in != "" && len(args) == 1:
		channel, text = in, args[0]
	case len(args) == 2:
		channel, text = strings.TrimPrefix(strings.TrimSpace(args[0]), "#"), args[1]
	default:
		return "", "", fmt.Errorf("usage: post <channel> <message> or post --in <channel> <message>")
	}
	if channel == "" {
		return "", "", fmt.Errorf("channel required")
	}
	return channel, text, nil
}
