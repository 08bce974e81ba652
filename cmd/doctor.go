package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nlbuilder/forgehost/internal/config"
	"github.com/nlbuilder/forgehost/internal/preflight"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("forgehost doctor")
	fmt.Printf("  OS:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:  %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config: %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Runtime binaries:")
	for _, bs := range preflight.CheckRuntimeBinaries(cfg) {
		if bs.Found {
			fmt.Printf("    %-10s %s\n", bs.Name+":", bs.Path)
		} else {
			fmt.Printf("    %-10s NOT FOUND\n", bs.Name+":")
		}
	}

	fmt.Println()
	fmt.Println("  Credentials:")
	for _, cs := range preflight.CheckCredentials(cfg) {
		if cs.Found {
			fmt.Printf("    %-10s %s (%s)\n", cs.Name+":", cs.Masked, cs.Source)
		} else {
			fmt.Printf("    %-10s (not configured)\n", cs.Name+":")
		}
	}

	fmt.Println()
	fmt.Println("  External tools:")
	for _, name := range []string{"docker", "curl", "git"} {
		bs := preflight.CheckBinary(name)
		if bs.Found {
			fmt.Printf("    %-10s %s\n", name+":", bs.Path)
		} else {
			fmt.Printf("    %-10s NOT FOUND\n", name+":")
		}
	}

	fmt.Println()
	fmt.Printf("  Store:  %s", cfg.DataDir)
	if err := preflight.StoreWriteCheck(cfg); err != nil {
		fmt.Printf(" (%s)\n", err)
	} else {
		fmt.Println(" (writable)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}
