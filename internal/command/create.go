package command

import (
	"fmt"
	"strings"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/adamavenir/aioffice/internal/wizard"
	"github.com/spf13/cobra"
)

// NewCreateCmd creates the create command.
func NewCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <prompt>",
		Short: "Create a project from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			prompt := strings.TrimSpace(strings.Join(args, " "))
			name, _ := cmd.Flags().GetString("name")
			template, _ := cmd.Flags().GetString("template")
			force, _ := cmd.Flags().GetBool("force")

			req, err := createRequest(prompt, name, template)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if !force {
				health := wizard.CheckProviders(cmd.Context(), ctx.Client)
				if !wizard.Healthy(health) {
					return writeCommandError(cmd, fmt.Errorf("no provider is reachable (%s); configure one or pass --force", describeHealth(health)))
				}
			}

			created, err := ctx.Client.CreateProjectFromPrompt(cmd.Context(), req)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd, created)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created project %s\n", created.Project)
			if created.Channel != "" {
				fmt.Fprintf(out, "  channel: #%s (aioffice chat %s)\n", created.Channel, created.Channel)
			}
			if created.Path != "" {
				fmt.Fprintf(out, "  path: %s\n", created.Path)
			}
			return nil
		},
	}

	cmd.Flags().String("name", "", "project name (derived from the prompt by default)")
	cmd.Flags().String("template", "", "template id")
	cmd.Flags().Bool("force", false, "skip the provider health check")

	return cmd
}

func createRequest(prompt, name, template string) (api.CreateFromPrompt, error) {
	if prompt == "" {
		return api.CreateFromPrompt{}, fmt.Errorf("prompt is required")
	}
	if name == "" {
		name = wizard.DeriveProjectName(prompt)
	} else {
		name = wizard.NormalizeProjectName(name)
	}
	if name == "" {
		return api.CreateFromPrompt{}, fmt.Errorf("could not derive a project name; pass --name")
	}
	return api.CreateFromPrompt{
		Prompt:      prompt,
		Template:    strings.TrimSpace(template),
		ProjectName: name,
	}, nil
}

func describeHealth(health map[types.Backend]wizard.Health) string {
	parts := make([]string, 0, len(types.Backends))
	for _, b := range types.Backends {
		h, ok := health[b]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", b, h.State))
	}
	return strings.Join(parts, ", ")
}
