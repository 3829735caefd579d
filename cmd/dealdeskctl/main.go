// dealdeskctl - operator tool for the dealdesk assistant
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dealdeskctl",
		Short:         "Inspect and drive the dealdesk assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSessionCmd())
	root.AddCommand(newChatCmd())
	return root
}
