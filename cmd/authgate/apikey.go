package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rhuss/authgate/pkg/auth"
	"github.com/rhuss/authgate/pkg/auth/apikey/postgres"
	"github.com/rhuss/authgate/pkg/config"
)

func newAPIKeyCmd() *cobra.Command {
	var (
		configPath string
		dsn        string
	)

	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage keys in the PostgreSQL key store",
		Long: `Manage keys in the PostgreSQL key store.

The database is taken from --dsn or from the first apikey link with
store: postgres in the configuration.`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string")

	open := func(ctx context.Context) (*postgres.Store, error) {
		pgCfg, err := keyStoreConfig(configPath, dsn)
		if err != nil {
			return nil, err
		}
		return postgres.New(ctx, pgCfg, slog.Default())
	}

	cmd.AddCommand(newAPIKeyAddCmd(open), newAPIKeyRevokeCmd(open))
	return cmd
}

type storeOpener func(ctx context.Context) (*postgres.Store, error)

func newAPIKeyAddCmd(open storeOpener) *cobra.Command {
	var (
		key     string
		subject string
		tenant  string
		tier    string
		scopes  []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a key; a random key is generated and printed unless --key is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			if key == "" {
				key = newAPIKey()
			}

			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			id := auth.Identity{Subject: subject, ServiceTier: tier, Scopes: scopes}
			if tenant != "" {
				id.Metadata = map[string]string{"tenant_id": tenant}
			}
			if err := store.Add(cmd.Context(), key, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Key value (default: generated)")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject the key authenticates as")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&tier, "tier", "", "Service tier")
	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "Comma-separated scopes")
	return cmd
}

func newAPIKeyRevokeCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke KEY",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Revoke(cmd.Context(), args[0])
		},
	}
}

// keyStoreConfig resolves the key store connection from flags or config.
func keyStoreConfig(configPath, dsn string) (postgres.Config, error) {
	if dsn != "" {
		return postgres.Config{DSN: dsn, MigrateOnStart: true}, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return postgres.Config{}, err
	}
	for _, l := range cfg.Auth.Links {
		if l.Type == config.LinkTypeAPIKey && l.StoreKind() == config.StorePostgres {
			return postgres.Config{
				DSN:            l.Postgres.DSN,
				MaxConns:       l.Postgres.MaxConns,
				MigrateOnStart: l.Postgres.MigrateOnStart,
			}, nil
		}
	}
	return postgres.Config{}, errors.New("no apikey link with store: postgres configured; pass --dsn")
}

// newAPIKey returns a random key with the "sk-" prefix.
func newAPIKey() string {
	return "sk-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
