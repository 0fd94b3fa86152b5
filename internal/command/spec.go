package command

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adamavenir/aioffice/internal/specdoc"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewSpecCmd creates the spec command.
func NewSpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Inspect, save and approve a channel's spec",
	}

	cmd.AddCommand(
		newSpecShowCmd(),
		newSpecCheckCmd(),
		newSpecSaveCmd(),
		newSpecApproveCmd(),
		newSpecHistoryCmd(),
	)

	return cmd
}

// specReport is the JSON form of a loaded spec.
type specReport struct {
	Channel      string               `json:"channel"`
	Project      string               `json:"project,omitempty"`
	Status       string               `json:"status"`
	Version      int                  `json:"spec_version"`
	Completeness specdoc.Completeness `json:"completeness"`
	Notice       string               `json:"notice,omitempty"`
	Markdown     string               `json:"markdown,omitempty"`
}

func newReport(e *specdoc.Editor, withBody bool) specReport {
	r := specReport{
		Channel:      e.Channel(),
		Project:      e.Project(),
		Status:       string(e.Status()),
		Version:      e.Version(),
		Completeness: e.Completeness(),
		Notice:       e.Notice(),
	}
	if withBody {
		r.Markdown = e.Markdown()
	}
	return r
}

// withEditor loads the spec of the command's channel and hands it to fn.
func withEditor(cmd *cobra.Command, args []string, fn func(ctx *CommandContext, e *specdoc.Editor) error) error {
	ctx, err := GetContext(cmd)
	if err != nil {
		return writeCommandError(cmd, err)
	}
	defer ctx.Close()

	channel, err := ctx.Channel(args)
	if err != nil {
		return writeCommandError(cmd, err)
	}

	editor := specdoc.NewEditor(ctx.Client, ctx.Store, channel)
	defer editor.Close()
	if err := editor.Load(cmd.Context()); err != nil {
		return writeCommandError(cmd, err)
	}
	if err := fn(ctx, editor); err != nil {
		return writeCommandError(cmd, err)
	}
	return nil
}

func writeSummary(out io.Writer, r specReport) {
	fmt.Fprintf(out, "Spec #%s", r.Channel)
	if r.Project != "" {
		fmt.Fprintf(out, " (%s)", r.Project)
	}
	fmt.Fprintf(out, ": %s, v%d, %d%% complete (%d/%d)\n",
		r.Status, r.Version, r.Completeness.Percent, r.Completeness.Completed, r.Completeness.Required)
	if r.Notice != "" {
		fmt.Fprintf(out, "Note: %s\n", r.Notice)
	}
}

func newSpecShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [channel]",
		Short: "Print the spec markdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, args, func(ctx *CommandContext, e *specdoc.Editor) error {
				r := newReport(e, true)
				if ctx.JSONMode {
					return writeJSON(cmd, r)
				}
				out := cmd.OutOrStdout()
				writeSummary(out, r)
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.TrimRight(r.Markdown, "\n"))
				return nil
			})
		},
	}
}

func newSpecCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [channel]",
		Short: "Report completeness and whether the spec can be approved",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, args, func(ctx *CommandContext, e *specdoc.Editor) error {
				r := newReport(e, false)
				gate := e.CheckApproval(specdoc.ApprovePhrase)
				if ctx.JSONMode {
					out := map[string]any{"spec": r, "approvable": gate == nil}
					if gate != nil {
						out["reason"] = errorText(gate)
					}
					return writeJSON(cmd, out)
				}
				out := cmd.OutOrStdout()
				writeSummary(out, r)
				for _, m := range r.Completeness.Missing {
					fmt.Fprintf(out, "  missing: %s\n", m)
				}
				if gate != nil {
					return gate
				}
				fmt.Fprintln(out, "Ready for approval")
				return nil
			})
		},
	}
}

func newSpecSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [channel]",
		Short: "Save the local draft, or a markdown file, to the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return withEditor(cmd, args, func(ctx *CommandContext, e *specdoc.Editor) error {
				if file != "" {
					md, err := readSpecFile(cmd, file)
					if err != nil {
						return err
					}
					e.ReplaceAll(specdoc.Parse(md))
				}
				if !e.Dirty() {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to save")
					return nil
				}
				if err := e.SaveDraft(cmd.Context()); err != nil {
					return err
				}
				r := newReport(e, false)
				if ctx.JSONMode {
					return writeJSON(cmd, r)
				}
				writeSummary(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}

	cmd.Flags().String("file", "", "markdown file to save (- for stdin)")
	return cmd
}

func readSpecFile(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func newSpecApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve [channel]",
		Short: "Approve a draft spec",
		Long:  fmt.Sprintf("Approves the spec. The draft must be at least %d%% complete and --confirm must be %q.", specdoc.ApproveThreshold, specdoc.ApprovePhrase),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetString("confirm")
			return withEditor(cmd, args, func(ctx *CommandContext, e *specdoc.Editor) error {
				if err := e.Approve(cmd.Context(), confirm); err != nil {
					return err
				}
				r := newReport(e, false)
				if ctx.JSONMode {
					return writeJSON(cmd, r)
				}
				writeSummary(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}

	cmd.Flags().String("confirm", "", fmt.Sprintf("type %q to confirm", specdoc.ApprovePhrase))
	return cmd
}

func newSpecHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [channel]",
		Short: "List spec and idea-bank snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withEditor(cmd, args, func(ctx *CommandContext, e *specdoc.Editor) error {
				entries, err := e.History(cmd.Context(), limit)
				stale := err != nil
				if stale && len(entries) == 0 {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd, map[string]any{"entries": entries, "cached": stale})
				}
				out := cmd.OutOrStdout()
				if stale {
					fmt.Fprintf(out, "Server unavailable (%s); showing cached history\n", errorText(err))
				}
				for _, h := range entries {
					fmt.Fprintf(out, "  %-9s v%-3d %-14s %s\n", h.Kind, h.SpecVersion, humanize.Time(h.CreatedAt), historyDelta(h))
				}
				return nil
			})
		},
	}

	cmd.Flags().Int("limit", specdoc.DefaultHistoryLimit, "number of snapshots")
	return cmd
}

func historyDelta(h specdoc.HistoryEntry) string {
	switch {
	case h.Initial:
		return "initial"
	case len(h.Changed) > 0:
		return "changed: " + strings.Join(h.Changed, ", ")
	case h.Added > 0 || h.Removed > 0:
		return fmt.Sprintf("+%d -%d lines", h.Added, h.Removed)
	}
	return "no changes"
}
