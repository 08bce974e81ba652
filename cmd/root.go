package cmd

import (
	"github.com/spf13/cobra"
)

// Execute builds the root command tree and runs it, returning any error
// for the entrypoint to report and translate into an exit code.
func Execute() error {
	root := &cobra.Command{
		Use:           "forgehost",
		Short:         "Scheduled chat-platform automation host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(cronCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(legacyTokenGuardCmd())
	root.AddCommand(onboardCmd())
	root.AddCommand(reviewCmd())

	return root.Execute()
}
