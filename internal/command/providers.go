package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/aioffice/internal/settings"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/spf13/cobra"
)

// NewProvidersCmd creates the providers command.
func NewProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect and test model providers",
	}

	cmd.AddCommand(newProvidersListCmd(), newProvidersTestCmd())
	return cmd
}

// providerRow is the JSON form of one provider.
type providerRow struct {
	types.ProviderConfig
	Diagnostic *types.ProviderDiagnostic `json:"diagnostic,omitempty"`
}

func newProvidersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers with key status, last test and the setup checklist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			engine := settings.New(ctx.Client, ctx.Store)
			if err := engine.Refresh(cmd.Context()); err != nil {
				return writeCommandError(cmd, err)
			}
			snap := engine.Snapshot()

			project := ""
			if ctx.ChannelID != "" {
				if active, err := ctx.Client.ActiveProject(cmd.Context(), ctx.ChannelID); err == nil {
					project = active.Project
				}
			}
			checklist := settings.Checklist(snap, project, time.Now())

			if ctx.JSONMode {
				rows := make([]providerRow, 0, len(types.Backends))
				for _, b := range types.Backends {
					p, ok := snap.Providers[b]
					if !ok {
						p = types.ProviderConfig{Provider: b}
					}
					row := providerRow{ProviderConfig: p}
					if d, ok := snap.Diagnostics[b]; ok {
						row.Diagnostic = &d
					}
					rows = append(rows, row)
				}
				return writeJSON(cmd, map[string]any{"providers": rows, "checklist": checklist})
			}

			out := cmd.OutOrStdout()
			for _, b := range types.Backends {
				p := snap.Providers[b]
				key := "no key"
				switch {
				case p.HasKey && p.MaskedKey != "":
					key = p.MaskedKey
				case p.HasKey:
					key = "key set"
				case p.BaseURL != "":
					key = p.BaseURL
				}
				model := p.DefaultModel
				if model == "" {
					model = "-"
				}
				status := engine.DiagnosticAge(b)
				if d, ok := snap.Diagnostics[b]; ok && !d.OK && d.ErrorSummary != "" {
					status += ": " + d.ErrorSummary
				}
				fmt.Fprintf(out, "  %-8s %-20s %-24s %s\n", b, key, model, status)
			}
			fmt.Fprintln(out)
			for _, item := range checklist {
				fmt.Fprintf(out, "  %s %s", gradeMark(item.Grade), item.Label)
				if item.Detail != "" {
					fmt.Fprintf(out, " (%s)", item.Detail)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newProvidersTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <provider>",
		Short: "Check a provider with its stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			backend := types.Backend(strings.ToLower(strings.TrimSpace(args[0])))
			model, _ := cmd.Flags().GetString("model")
			copyDetails, _ := cmd.Flags().GetBool("copy")

			engine := settings.New(ctx.Client, ctx.Store)
			if model != "" {
				engine.SetDraft(backend, settings.ProviderDraft{DefaultModel: model})
			}
			outcome, err := engine.TestProvider(cmd.Context(), backend)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				if err := writeJSON(cmd, outcome); err != nil {
					return err
				}
			} else {
				writeOutcome(cmd, outcome)
			}

			if outcome.Failure == nil {
				return nil
			}
			if copyDetails {
				if err := settings.CopyDetails(*outcome.Failure); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Could not copy details: %v\n", err)
				} else if !ctx.JSONMode {
					fmt.Fprintln(cmd.OutOrStdout(), "Details copied to clipboard")
				}
			}
			return fmt.Errorf("%s test failed", backend)
		},
	}

	cmd.Flags().String("model", "", "model to check instead of the default")
	cmd.Flags().Bool("copy", false, "copy failure details to the clipboard")
	return cmd
}

func writeOutcome(cmd *cobra.Command, o settings.Outcome) {
	out := cmd.OutOrStdout()
	if o.Failure == nil {
		fmt.Fprintf(out, "%s ok in %dms", o.Provider, o.LatencyMS)
		if o.Model != "" {
			fmt.Fprintf(out, " (%s)", o.Model)
		}
		fmt.Fprintln(out)
		return
	}
	f := o.Failure
	fmt.Fprintf(out, "%s failed: %s\n", o.Provider, f.Error)
	if f.Code != "" || f.Status != 0 {
		fmt.Fprintf(out, "  code: %s status: %d\n", f.Code, f.Status)
	}
	fmt.Fprintf(out, "  request: %s\n", f.RequestID)
	if f.Hint != "" {
		fmt.Fprintf(out, "  hint: %s\n", f.Hint)
	}
	if f.BillingHint != "" {
		fmt.Fprintf(out, "  billing: %s\n", f.BillingHint)
	}
}
