package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nlbuilder/forgehost/internal/preflight"
)

func legacyTokenGuardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "legacy-token-guard",
		Short: "Scan the repository for hardcoded secret literals",
		Run: func(cmd *cobra.Command, args []string) {
			wd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			violations, err := preflight.ScanTree(wd)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if len(violations) == 0 {
				fmt.Println("legacy-token-guard: no hardcoded secret literals found.")
				return
			}
			for _, v := range violations {
				fmt.Println(preflight.FormatViolation(v))
			}
			os.Exit(1)
		},
	}
}
