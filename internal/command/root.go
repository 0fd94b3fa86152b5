package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const AppName = "aioffice"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "AI Office - terminal workspace for driving AI agents",
		Long:          "aioffice connects to an AI Office server and drives its agents through discuss, spec, build and preview.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "config file (default $XDG_CONFIG_HOME/aioffice/config.yaml)")
	cmd.PersistentFlags().String("server", "", "server base URL, overrides server.base_url")
	cmd.PersistentFlags().String("in", "", "operate in channel context")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewChatCmd(),
		NewChannelsCmd(),
		NewPostCmd(),
		NewUnreadCmd(),
		NewCreateCmd(),
		NewSpecCmd(),
		NewLayoutCmd(),
		NewProvidersCmd(),
		NewStateCmd(),
	)

	return cmd
}

// Execute runs the root command and prints errors the command did not
// report itself, such as argument and flag errors.
func Execute() error {
	root := NewRootCmd(Version)
	err := root.Execute()
	var reported reportedError
	if err != nil && !errors.As(err, &reported) {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %s\n", err)
	}
	return err
}
