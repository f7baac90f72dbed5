package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhyzero/file-organizer/internal/api"
	"github.com/rhyzero/file-organizer/internal/auth"
	"github.com/rhyzero/file-organizer/internal/config"
	"github.com/rhyzero/file-organizer/internal/gcp"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/services"
	"github.com/rhyzero/file-organizer/internal/tags"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:          "organizer",
		Short:        "Document ingestion, classification and tag search",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides ORGANIZER_CONFIG)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(batchCmd("reconcile", "Record every unprocessed file in the intake folder", models.BatchModeReconcile))
	rootCmd.AddCommand(batchCmd("retry-failed", "Re-run extraction for failed records", models.BatchModeRetryFailed))
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(taxonomyCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("ORGANIZER_CONFIG", configPath); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

func openApp(ctx context.Context) (*services.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return services.NewApp(ctx, cfg, slog.Default())
}

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if port == "" {
				port = app.Config.Port
			}
			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           api.NewServerFromApp(app),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("Starting server.", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			slog.Info("Shutting down server.")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (defaults to PORT)")
	return cmd
}

func batchCmd(use, short, mode string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			resp, err := app.RunBatch(cmd.Context(), models.BatchRequest{Mode: mode})
			if err != nil {
				return err
			}

			names := make([]string, 0, len(resp.Results))
			for name := range resp.Results {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%s\t%s\n", name, resp.Results[name])
			}
			fmt.Printf("%d file(s)\n", len(names))
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		tagFilters []string
		keyword    string
		docType    string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search recorded documents by tag, keyword or type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tagFilters) > 3 {
				return fmt.Errorf("at most 3 tags can be given, got %d", len(tagFilters))
			}
			q := models.SearchQuery{Keyword: keyword, Type: docType}
			slots := []*string{&q.Tag1, &q.Tag2, &q.Tag3}
			for i, t := range tagFilters {
				*slots[i] = t
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.Search.Search(cmd.Context(), q)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			if len(results) == 0 {
				fmt.Println("No documents found.")
				return nil
			}
			for _, d := range results {
				fmt.Printf("%s  %-12s  %s  [%s]\n", d.ID, d.DocumentType, d.FileName, strings.Join(d.Tags, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&tagFilters, "tag", nil, "tag filter, repeatable up to 3 times")
	cmd.Flags().StringVar(&keyword, "keyword", "", "substring of the extracted text")
	cmd.Flags().StringVar(&docType, "type", "", "academic or professional")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func taxonomyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Print the tag categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tags.LoadTaxonomy(file)
			if err != nil {
				return err
			}
			fmt.Printf("professional: %s\n", strings.Join(t.Professional, ", "))
			fmt.Printf("academic:     %s\n", strings.Join(t.Academic, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", gcp.GetEnv("TAXONOMY_FILE", ""), "YAML taxonomy file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint a development bearer token (hmac auth mode)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := auth.NewHMACVerifier([]byte(gcp.GetEnv("AUTH_HMAC_SECRET", "")))
			if err != nil {
				return err
			}
			token, err := v.Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
