package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/authgate/pkg/auth/basic"
)

func newHashPasswordCmd() *cobra.Command {
	var (
		password string
		cost     int
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for a basic auth user",
		Long: `Print a bcrypt hash suitable for auth.links[*].users[*].password_hash.

The password is read from --password or, if omitted, from the first line of
standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := basic.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password to hash (default: read from stdin)")
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default: bcrypt.DefaultCost)")
	return cmd
}
