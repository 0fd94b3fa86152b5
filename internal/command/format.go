package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adamavenir/aioffice/internal/settings"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func channelLabel(c types.Channel) string {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	if c.Type == types.ChannelDM {
		return "@" + name
	}
	return "#" + name
}

func formatAge(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.Time(*t)
}

func formatMessage(out io.Writer, msg types.Message) {
	prefix := fmt.Sprintf("[#%d] %s", msg.ID, msg.Sender)
	if msg.ParentID != nil {
		prefix += fmt.Sprintf(" ↳ #%d", *msg.ParentID)
	}
	if msg.MsgType != "" && msg.MsgType != types.MessageTypeMessage {
		prefix += " [" + string(msg.MsgType) + "]"
	}
	fmt.Fprintf(out, "%s: %s\n", prefix, strings.TrimSpace(msg.Content))
}

func gradeMark(grade settings.Grade) string {
	switch grade {
	case settings.GradePass:
		return "✓"
	case settings.GradeWarn:
		return "!"
	}
	return "✗"
}
