// Command forgehost runs the scheduled chat-platform automation host.
package main

import (
	"fmt"
	"os"

	"github.com/nlbuilder/forgehost/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
