package command

import (
	"fmt"
	"strings"

	"github.com/adamavenir/aioffice/internal/types"
	"github.com/spf13/cobra"
)

// NewChannelsCmd creates the channels command.
func NewChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			channels, err := ctx.Client.ListChannels(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd, channels)
			}

			out := cmd.OutOrStdout()
			if len(channels) == 0 {
				fmt.Fprintln(out, "No channels")
				return nil
			}
			for _, c := range channels {
				fmt.Fprintf(out, "  %-24s %-6s %s\n", channelLabel(c), c.Type, formatAge(c.LastActivityAt))
			}
			return nil
		},
	}

	cmd.AddCommand(NewChannelCreateCmd(), NewChannelDeleteCmd(), NewHistoryCmd())

	return cmd
}

// NewChannelCreateCmd creates the channels create command.
func NewChannelCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			name := strings.TrimSpace(args[0])
			if name == "" {
				return writeCommandError(cmd, fmt.Errorf("channel name is required"))
			}
			channel, err := ctx.Client.CreateChannel(cmd.Context(), name)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd, channel)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", channelLabel(channel), channel.ID)
			return nil
		},
	}
}

// NewChannelDeleteCmd creates the channels delete command.
func NewChannelDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <channel>",
		Short: "Delete a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			withMessages, _ := cmd.Flags().GetBool("messages")
			id := strings.TrimPrefix(args[0], "#")
			if err := ctx.Client.DeleteChannel(cmd.Context(), id, withMessages); err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]any{"deleted": id, "delete_messages": withMessages})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%s\n", id)
			return nil
		},
	}

	cmd.Flags().Bool("messages", false, "also delete the channel's messages")
	return cmd
}

// NewHistoryCmd creates the channels history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [channel]",
		Short: "Show recent messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			channel, err := ctx.Channel(args)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			limit, _ := cmd.Flags().GetInt("last")

			msgs, err := ctx.Client.Messages(cmd.Context(), channel, limit)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				if msgs == nil {
					msgs = []types.Message{}
				}
				return writeJSON(cmd, msgs)
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages")
				return nil
			}
			for _, m := range msgs {
				formatMessage(out, m)
			}
			return nil
		},
	}

	cmd.Flags().Int("last", 20, "number of messages to show")
	return cmd
}
