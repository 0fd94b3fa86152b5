package command

import (
	"fmt"
	"sort"

	"github.com/adamavenir/aioffice/internal/unread"
	"github.com/spf13/cobra"
)

// unreadEntry is one row of the unread report.
type unreadEntry struct {
	Channel string `json:"channel"`
	Latest  int64  `json:"latest_message_id"`
	Seen    int64  `json:"seen_message_id"`
	Unread  bool   `json:"unread"`
}

// NewUnreadCmd creates the unread command.
func NewUnreadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unread",
		Short: "Show channels with unseen messages",
		Long: "Compares each channel's latest message with the seen watermark stored on this machine. " +
			"Channels never opened here start out read.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			markRead, _ := cmd.Flags().GetBool("mark-read")

			activity, err := ctx.Client.ChannelActivity(cmd.Context(), 0)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			visible := make([]string, 0, len(activity))
			for _, a := range activity {
				if a.ChannelID != "" {
					visible = append(visible, a.ChannelID)
				}
			}

			engine := unread.New(ctx.Store, unread.NopNotifier{})
			snap := engine.Apply(cmd.Context(), activity, visible)
			entries := unreadEntries(snap)

			if markRead {
				for i, e := range entries {
					engine.MarkSeen(e.Channel, e.Latest)
					entries[i].Seen, entries[i].Unread = e.Latest, false
				}
			}

			if ctx.JSONMode {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			count := 0
			for _, e := range entries {
				if !e.Unread {
					continue
				}
				count++
				fmt.Fprintf(out, "  #%-24s latest #%d, seen #%d\n", e.Channel, e.Latest, e.Seen)
			}
			switch {
			case markRead:
				fmt.Fprintf(out, "Marked %d channel(s) read\n", len(entries))
			case count == 0:
				fmt.Fprintln(out, "All caught up")
			}
			return nil
		},
	}

	cmd.Flags().Bool("mark-read", false, "mark every channel read")

	return cmd
}

func unreadEntries(snap unread.Snapshot) []unreadEntry {
	entries := make([]unreadEntry, 0, len(snap.Unread))
	for ch, n := range snap.Unread {
		entries = append(entries, unreadEntry{
			Channel: ch,
			Latest:  snap.Latest[ch],
			Seen:    snap.Seen[ch],
			Unread:  n > 0,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Channel < entries[j].Channel })
	return entries
}
