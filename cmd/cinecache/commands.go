package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/cinecache/cache"
)

// flagOrEnv returns the flag value, then the environment value, then def.
func flagOrEnv(cmd *cobra.Command, flag, env, def string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cinecache",
		Short:         "TTL cache-aside service for movie metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (env CINECACHE_CONFIG)")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error (env CINECACHE_LOG_LEVEL)")

	root.AddCommand(newServeCmd(), newKeyCmd(), newPruneCmd())
	return root
}

// configFor loads, overrides and resolves the configuration for cmd.
func configFor(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(flagOrEnv(cmd, "config", "CINECACHE_CONFIG", ""))
	if err != nil {
		return cfg, err
	}
	if level := flagOrEnv(cmd, "log-level", "CINECACHE_LOG_LEVEL", ""); level != "" {
		cfg.Observe.Logging.Enabled = true
		cfg.Observe.Logging.Level = level
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen, _ = cmd.Flags().GetString("listen")
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Backend, _ = cmd.Flags().GetString("store")
	}
	if err := cfg.resolveSecrets(cmd.Context()); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFor(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(ctx) }()

			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return err
			}
			return a.serve(ctx, ln)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default :8080)")
	cmd.Flags().String("store", "", "store backend: memory, redis or sql")
	return cmd
}

func newKeyCmd() *cobra.Command {
	var name, params string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the cache key for an accessor name and JSON parameters",
		Example: `  cinecache key --name movie-details --params '{"id":949}'
  cinecache key --name genres-movie`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			canonical, key, err := deriveKey(name, params)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, key)
			fmt.Fprintln(out, canonical)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "accessor name")
	cmd.Flags().StringVar(&params, "params", "{}", "parameters as JSON")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// deriveKey decodes params with json.Number so integers stay integers.
func deriveKey(name, params string) (canonical, key string, err error) {
	dec := json.NewDecoder(bytes.NewBufferString(params))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return "", "", fmt.Errorf("params: %w", err)
	}
	if dec.More() {
		return "", "", errors.New("params: trailing data after JSON value")
	}

	v, err := cache.FromAny(raw)
	if err != nil {
		return "", "", err
	}
	c, err := cache.Canonical(v)
	if err != nil {
		return "", "", err
	}
	key, err = cache.DeriveKey(name, v)
	if err != nil {
		return "", "", err
	}
	return string(c), key, nil
}

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired entries from the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFor(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			pruner, ok := st.Store.(cache.Pruner)
			if !ok {
				return fmt.Errorf("store backend %q expires entries itself", cfg.Store.Backend)
			}
			n, err := pruner.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", n)
			return nil
		},
	}
	cmd.Flags().String("store", "", "store backend: memory, redis or sql")
	return cmd
}
