package command

import (
	"fmt"

	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/logger"
	"github.com/spf13/cobra"
)

// NewStateCmd creates the state command.
func NewStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or clear UI state saved on this machine",
	}

	cmd.AddCommand(newStateListCmd(), newStateResetCmd())
	return cmd
}

// stateEntry is one stored key.
type stateEntry struct {
	Key    string `json:"key"`
	Domain string `json:"domain"`
	Scope  string `json:"scope"`
	Value  string `json:"value,omitempty"`
}

func parseDomain(name string) (kv.Domain, error) {
	d := kv.Domain(name)
	if !kv.Known(d) {
		return "", fmt.Errorf("unknown state domain %q (see 'aioffice state list --domains')", name)
	}
	return d, nil
}

func newStateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [domain]",
		Short: "List stored keys, optionally of one domain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, _ := cmd.Flags().GetBool("domains")
			values, _ := cmd.Flags().GetBool("values")

			if domains {
				jsonMode, _ := cmd.Flags().GetBool("json")
				if jsonMode {
					out := make(map[string]string)
					for _, d := range kv.Domains() {
						out[string(d)] = kv.Describe(d)
					}
					return writeJSON(cmd, out)
				}
				for _, d := range kv.Domains() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-28s %s\n", d, kv.Describe(d))
				}
				return nil
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			prefix := kv.Namespace + ":"
			if len(args) == 1 {
				d, err := parseDomain(args[0])
				if err != nil {
					return writeCommandError(cmd, err)
				}
				prefix = kv.Prefix(d)
			}

			entries := []stateEntry{}
			for _, key := range ctx.Store.ScanPrefix(prefix) {
				e := stateEntry{Key: key}
				if d, scope, _, ok := kv.ParseKey(key); ok {
					e.Domain, e.Scope = string(d), scope
				}
				if values {
					if raw, ok := ctx.Store.Raw(key); ok {
						e.Value = string(raw)
					}
				}
				entries = append(entries, e)
			}

			if ctx.JSONMode {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No saved state")
				return nil
			}
			for _, e := range entries {
				if values {
					fmt.Fprintf(out, "  %s = %s\n", e.Key, logger.Truncate(e.Value, 80))
					continue
				}
				fmt.Fprintf(out, "  %s\n", e.Key)
			}
			return nil
		},
	}

	cmd.Flags().Bool("domains", false, "list known domains instead of keys")
	cmd.Flags().Bool("values", false, "include stored values")
	return cmd
}

func newStateResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [domain]",
		Short: "Delete saved state of one domain, optionally narrowed to a scope",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			scope, _ := cmd.Flags().GetString("scope")

			var prefix string
			switch {
			case all && len(args) == 0 && scope == "":
				prefix = kv.Namespace + ":"
			case !all && len(args) == 1:
				d, err := parseDomain(args[0])
				if err != nil {
					return writeCommandError(cmd, err)
				}
				if scope != "" {
					prefix = kv.Prefix(d, scope)
				} else {
					prefix = kv.Prefix(d)
				}
			default:
				return writeCommandError(cmd, fmt.Errorf("pass a domain, or --all on its own"))
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			n := ctx.Store.Clear(prefix)
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]any{"prefix": prefix, "removed": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d key(s)\n", n)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "delete every saved key")
	cmd.Flags().String("scope", "", "only keys of this scope (project or global)")
	return cmd
}
