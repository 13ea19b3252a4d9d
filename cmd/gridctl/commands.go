package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gridshare/api/internal/codec"
	"gridshare/api/internal/config"
	"gridshare/api/internal/grid"
	"gridshare/api/internal/share"
	"gridshare/api/internal/sharestore"
	"gridshare/api/internal/store"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gridctl",
		Short:         "Encode, share and inspect Grid Share documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEncodeCmd(), newDecodeCmd(), newShareCmd(), newOpenCmd(), newCleanupCmd(), newMigrateCmd())
	return root
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [file]",
		Short: "Print the share payload for a JSON document (stdin by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, raw); err != nil {
				return fmt.Errorf("input is not JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), codec.EncodeJSON(compact.Bytes()))
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <payload>",
		Short: "Print the JSON document inside a share payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := codec.DecodeJSON(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), json.RawMessage(raw))
		},
	}
}

func newShareCmd() *cobra.Command {
	var baseURL string
	var inline bool
	cmd := &cobra.Command{
		Use:   "share [file]",
		Short: "Print a share URL for a grid document (stdin by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var doc grid.Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("input is not a grid document: %w", err)
			}
			doc.Normalize()
			if err := doc.Validate(); err != nil {
				return err
			}

			cfg := config.Load()
			if baseURL == "" {
				baseURL = cfg.BaseURL
			}
			if inline {
				link, err := share.ShareURL(baseURL, doc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			}

			links, closeLinks, err := openLinks(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLinks()
			resolver := share.NewResolver(links, share.Options{InlineLimit: cfg.InlineLimit})
			link, err := resolver.ShortShareURL(cmd.Context(), baseURL, doc)
			if err != nil {
				return err
			}
			if link.Degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: storage unavailable, link carries the whole grid")
			}
			fmt.Fprintln(cmd.OutOrStdout(), link.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base", "", "share page URL (defaults to GRIDSHARE_BASE_URL)")
	cmd.Flags().BoolVar(&inline, "inline", false, "always embed the grid in the URL")
	return cmd
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Resolve a share URL and print its grid document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			var links share.Links
			if strings.Contains(args[0], "id=") {
				stored, closeLinks, err := openLinks(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer closeLinks()
				links = stored
			}
			doc, err := share.NewResolver(links, share.Options{InlineLimit: cfg.InlineLimit}).ResolveURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired share records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			links, closeLinks, err := openLinks(cmd.Context(), config.Load())
			if err != nil {
				return err
			}
			defer closeLinks()
			purged, err := links.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired records\n", purged)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations, or roll all of them back with --down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if down {
				if err := store.RollbackMigrations(cmd.Context(), db, cfg.MigrationsDir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back all migrations")
				return nil
			}
			if err := store.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every applied migration")
	return cmd
}

// openLinks connects the same tiers the API server uses. Without Redis the
// CLI runs on the database alone.
func openLinks(ctx context.Context, cfg config.Config) (*sharestore.Store, func(), error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	closers := []func() error{db.Close}
	var fallback sharestore.Backend
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisBackend, err := sharestore.NewRedisBackend(cfg.RedisURL, cfg.ShareNamespace)
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning: redis unavailable:", err)
		} else {
			fallback = redisBackend
			closers = append(closers, redisBackend.Close)
		}
	}

	links := sharestore.New(sharestore.NewSQLBackend(db), fallback, sharestore.Options{
		TTL:     cfg.ShareTTL,
		Timeout: cfg.StoreTimeout,
	})
	return links, func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}, nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
