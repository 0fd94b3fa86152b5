package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adamavenir/aioffice/internal/layout"
	"github.com/spf13/cobra"
)

// NewLayoutCmd creates the layout command.
func NewLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Inspect or change the saved workspace layout of a project",
	}

	cmd.PersistentFlags().String("project", "", "project name (defaults to the active project of --in)")
	cmd.PersistentFlags().String("branch", "", "branch name")

	cmd.AddCommand(newLayoutShowCmd(), newLayoutSetCmd(), newLayoutResetCmd())
	return cmd
}

// layoutReport is the JSON form of a layout.
type layoutReport struct {
	Project     string          `json:"project"`
	Branch      string          `json:"branch,omitempty"`
	Mode        layout.Mode     `json:"mode"`
	Ratios      []float64       `json:"ratios"`
	Ratio       float64         `json:"ratio,omitempty"`
	LeftRatio   float64         `json:"left_ratio,omitempty"`
	CenterRatio float64         `json:"center_ratio,omitempty"`
	Collapsed   map[string]bool `json:"collapsed,omitempty"`
}

// withLayout resolves the project scope and hands a scoped engine to fn.
func withLayout(cmd *cobra.Command, fn func(ctx *CommandContext, e *layout.Engine) error) error {
	ctx, err := GetContext(cmd)
	if err != nil {
		return writeCommandError(cmd, err)
	}
	defer ctx.Close()

	project, _ := cmd.Flags().GetString("project")
	branch, _ := cmd.Flags().GetString("branch")
	if project == "" {
		if ctx.ChannelID == "" {
			return writeCommandError(cmd, fmt.Errorf("pass --project or --in <channel>"))
		}
		active, err := ctx.Client.ActiveProject(cmd.Context(), ctx.ChannelID)
		if err != nil {
			return writeCommandError(cmd, err)
		}
		if active.Project == "" {
			return writeCommandError(cmd, fmt.Errorf("#%s has no active project", ctx.ChannelID))
		}
		project = active.Project
		if branch == "" {
			branch = active.Branch
		}
	}

	engine := layout.New(ctx.Store)
	engine.SetScope(project, branch)
	if err := fn(ctx, engine); err != nil {
		return writeCommandError(cmd, err)
	}
	return nil
}

func writeLayout(cmd *cobra.Command, ctx *CommandContext, e *layout.Engine) error {
	l := e.Layout()
	project, branch := e.Scope()
	r := layoutReport{
		Project:   project,
		Branch:    branch,
		Mode:      l.Mode,
		Ratios:    l.Ratios(),
		Collapsed: l.Collapsed,
	}
	switch l.Mode {
	case layout.ModeSplit:
		r.Ratio = l.Ratio
	case layout.ModeFullIDE:
		r.LeftRatio, r.CenterRatio = l.LeftRatio, l.CenterRatio
	}
	if ctx.JSONMode {
		return writeJSON(cmd, r)
	}

	out := cmd.OutOrStdout()
	scope := project
	if branch != "" {
		scope += "@" + branch
	}
	fmt.Fprintf(out, "%s: %s\n", scope, l.Mode)
	parts := make([]string, len(r.Ratios))
	for i, v := range r.Ratios {
		parts[i] = fmt.Sprintf("%.0f%%", v*100)
	}
	fmt.Fprintf(out, "  panes: %s\n", strings.Join(parts, " | "))
	var collapsed []string
	for panel, on := range l.Collapsed {
		if on {
			collapsed = append(collapsed, panel)
		}
	}
	if len(collapsed) > 0 {
		sort.Strings(collapsed)
		fmt.Fprintf(out, "  collapsed: %s\n", strings.Join(collapsed, ", "))
	}
	return nil
}

func newLayoutShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the layout of the saved mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, func(ctx *CommandContext, e *layout.Engine) error {
				return writeLayout(cmd, ctx, e)
			})
		},
	}
}

func newLayoutSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the mode, pane ratios or collapsed panels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, func(ctx *CommandContext, e *layout.Engine) error {
				patch, mode, err := layoutPatch(cmd)
				if err != nil {
					return err
				}
				if mode != "" {
					e.SetMode(mode)
				}
				e.Update(patch)
				return writeLayout(cmd, ctx, e)
			})
		},
	}

	cmd.Flags().String("mode", "", "split, full-ide, focus-chat, focus-preview or focus-files")
	cmd.Flags().Float64("ratio", 0, "split mode: width of the chat pane (0-1)")
	cmd.Flags().Float64("left", 0, "full-ide mode: width of the left pane (0-1)")
	cmd.Flags().Float64("center", 0, "full-ide mode: width of the center pane (0-1)")
	cmd.Flags().StringSlice("collapse", nil, "panels to collapse")
	cmd.Flags().StringSlice("expand", nil, "panels to expand")
	return cmd
}

// layoutPatch builds a patch from the set flags. Unset ratio flags are left
// out so they keep their saved values.
func layoutPatch(cmd *cobra.Command) (layout.Patch, string, error) {
	var p layout.Patch
	mode, _ := cmd.Flags().GetString("mode")
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "" && mode != "focus" && layout.NormalizeMode(mode) != layout.Mode(mode) {
		return p, "", fmt.Errorf("unknown mode %q", mode)
	}

	ratio := func(name string) (*float64, error) {
		if !cmd.Flags().Changed(name) {
			return nil, nil
		}
		v, _ := cmd.Flags().GetFloat64(name)
		if v <= 0 || v >= 1 {
			return nil, fmt.Errorf("--%s must be between 0 and 1", name)
		}
		return layout.Float(v), nil
	}
	var err error
	if p.Ratio, err = ratio("ratio"); err != nil {
		return p, "", err
	}
	if p.LeftRatio, err = ratio("left"); err != nil {
		return p, "", err
	}
	if p.CenterRatio, err = ratio("center"); err != nil {
		return p, "", err
	}
	if p.LeftRatio != nil && p.CenterRatio != nil && *p.LeftRatio+*p.CenterRatio >= 1 {
		return p, "", fmt.Errorf("--left and --center must leave room for the right pane")
	}

	collapse, _ := cmd.Flags().GetStringSlice("collapse")
	expand, _ := cmd.Flags().GetStringSlice("expand")
	if len(collapse)+len(expand) > 0 {
		p.Collapsed = make(map[string]bool, len(collapse)+len(expand))
		for _, panel := range collapse {
			p.Collapsed[panel] = true
		}
		for _, panel := range expand {
			p.Collapsed[panel] = false
		}
	}
	return p, mode, nil
}

func newLayoutResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default layout of the saved mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLayout(cmd, func(ctx *CommandContext, e *layout.Engine) error {
				e.Reset()
				return writeLayout(cmd, ctx, e)
			})
		},
	}
}
