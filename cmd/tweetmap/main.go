package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-tweetmap/internal/api"
	"github.com/joeblew999/plat-tweetmap/internal/auth"
	"github.com/joeblew999/plat-tweetmap/internal/config"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/server"
	"github.com/joeblew999/plat-tweetmap/internal/tiles"
	"github.com/joeblew999/plat-tweetmap/internal/visual"
)

// Options defines the CLI flags and env vars. Flags override the config
// file; zero values keep it.
// Flags: --config, --host, --port, --backend
// Env vars: SERVICE_CONFIG, SERVICE_HOST, SERVICE_PORT, SERVICE_BACKEND
type Options struct {
	Config  string `doc:"Path to config.yaml (default: CONFIG_PATH, then ./config.yaml)"`
	Host    string `doc:"Host to bind to"`
	Port    int    `doc:"Port to listen on" short:"p"`
	Backend string `doc:"Data backend: remote or duckdb"`
}

func loadConfig(opts *Options) config.Config {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Backend != "" {
		cfg.Backend.Kind = opts.Backend
	}
	logging.Init(cfg.Logging)
	return cfg
}

func newServer(cfg config.Config) *server.Server {
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		logging.Error().Err(err).Msg("server init failed")
		os.Exit(1)
	}
	return srv
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server
		var srv *server.Server

		hooks.OnStart(func() {
			cfg := loadConfig(opts)
			srv = newServer(cfg)

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			displayHost := cfg.Server.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, cfg.Server.Port)

			fmt.Println()
			fmt.Printf("plat-tweetmap server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Backend: %s\n", cfg.Backend.Kind)
			fmt.Println()
			fmt.Printf("  Pages:   %s/, %s/query/new\n", baseURL, baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error().Err(err).Msg("server error")
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logging.Warn().Err(err).Msg("shutdown")
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "tweetmap"
	cli.Root().Short = "Dashboard for geo-bounded tweet collection queries"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(loadConfig(opts))
			defer srv.Close()
			spec := srv.API().OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			output, err := marshal(spec, useYAML)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// styles subcommand: print the heatmap and circle layer definitions
	stylesCmd := &cobra.Command{
		Use:   "styles",
		Short: "Print the map layer styles for the configured tables",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg := loadConfig(opts)
			layers := visual.New(cfg.Style).Layers(cfg.Map.Source, cfg.Map.ScoreProperty)
			useYAML, _ := cmd.Flags().GetBool("yaml")
			output, err := marshal(layers, useYAML)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling styles: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	stylesCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(stylesCmd)

	// encode subcommand: evaluate the visual encoding for one feature
	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the radius, color and heat weight for a score at a zoom",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg := loadConfig(opts)
			score, _ := cmd.Flags().GetFloat64("score")
			zoom, _ := cmd.Flags().GetFloat64("zoom")
			enc := visual.New(cfg.Style).Encode(score, zoom)
			output, _ := json.MarshalIndent(enc, "", "  ")
			fmt.Println(string(output))
		}),
	}
	encodeCmd.Flags().Float64("score", 0, "Feature score")
	encodeCmd.Flags().Float64("zoom", 14, "Map zoom level")
	cli.Root().AddCommand(encodeCmd)

	// tiles subcommand: export the active features as a PMTiles archive
	tilesCmd := &cobra.Command{
		Use:   "tiles",
		Short: "Export the active query features as a PMTiles vector tile archive",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg := loadConfig(opts)
			srv := newServer(cfg)
			defer srv.Close()

			out, _ := cmd.Flags().GetString("out")
			minZoom, _ := cmd.Flags().GetInt("min-zoom")
			maxZoom, _ := cmd.Flags().GetInt("max-zoom")
			if err := exportTiles(srv, cfg, out, tiles.Options{
				Layer:         cfg.Map.Source,
				ScoreProperty: cfg.Map.ScoreProperty,
				MinZoom:       minZoom,
				MaxZoom:       maxZoom,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting tiles: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	tilesCmd.Flags().StringP("out", "o", "tweets.pmtiles", "Output archive path")
	tilesCmd.Flags().Int("min-zoom", 0, "Minimum zoom level")
	tilesCmd.Flags().Int("max-zoom", tiles.MaxZoom, "Maximum zoom level")
	cli.Root().AddCommand(tilesCmd)

	// hash-password subcommand: produce auth.password_hash
	hashCmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for auth.password_hash",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(h)
		},
	}
	cli.Root().AddCommand(hashCmd)

	cli.Run()
}

func exportTiles(srv *server.Server, cfg config.Config, path string, opts tiles.Options) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout+30*time.Second)
	defer cancel()

	fc, err := srv.Backend().ActiveFeatures(ctx)
	if err != nil {
		return err
	}
	bound, ok := fc.Bound()
	if !ok {
		return fmt.Errorf("no active features to export")
	}
	built, err := tiles.Build(fc, opts)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiles.WriteArchive(f, built, bound, opts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %d tiles for %d features to %s\n", len(built), len(fc), path)
	return nil
}

func marshal(v any, useYAML bool) ([]byte, error) {
	if useYAML {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
