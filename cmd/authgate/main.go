// Command authgate runs an HTTP server that authenticates every request
// through a configurable chain of auth links.
//
// Subcommands:
//
//	serve          - start the server (see pkg/config for the YAML schema)
//	hash-password  - print a bcrypt hash for a basic auth user
//	apikey         - add or revoke keys in the PostgreSQL key store
//	version        - print the build version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authgate",
		Short: "Pluggable authentication gateway",
		Long: `authgate runs every HTTP request through an ordered chain of auth links
(JWT, Basic, API key, none). Each link may authenticate the caller, answer
the request directly, or pass it on; responses travel back through the same
links in reverse order.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newHashPasswordCmd(),
		newAPIKeyCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "authgate", version)
		},
	}
}
