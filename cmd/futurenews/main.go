// futurenews serves recent news and generates plausible future news from it.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/api"
	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/internal/news"
	"github.com/seenimoa/futurenews/internal/scheduler"
	"github.com/seenimoa/futurenews/pkg/logger"
	"github.com/seenimoa/futurenews/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger
var (
	cfg *config.Config
	log *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "futurenews",
	Short: "futurenews: news from the future",
	Long: `futurenews ingests recent articles from NewsData.io and RSS feeds,
keeps them in a persisted cache, and asks a local Ollama model to write
plausible future news from them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		log, err = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("futurenews %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server with periodic refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.API.Addr()
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			addr = fmt.Sprintf("%s:%d", cfg.API.Host, port)
		}

		worker := scheduler.NewPeriodicWorker(scheduler.RefreshJob{Service: a.news}, cfg.News.FetchInterval, log)
		worker.Start(ctx)

		srv := api.NewServer(cfg, a.news, a.gen, api.WithLogger(log), api.WithVersion(version))
		serveErr := srv.ListenAndServe(ctx, addr)

		if err := worker.Stop(30 * time.Second); err != nil {
			log.Warn("refresh worker did not stop cleanly", zap.Error(err))
		}
		return serveErr
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port override")
}

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one ingestion cycle and persist the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.news.Refresh(cmd.Context())
		if res.Err != nil {
			fmt.Printf("Refresh abandoned, kept %d cached articles\n", res.Articles)
			return scheduler.RefreshOutcome(res)
		}
		fmt.Printf("Refreshed %d articles at %s\n", res.Articles, res.Refreshed.Format(time.RFC3339))
		for _, pe := range res.Errors {
			fmt.Printf("  failed %s\n", pe.Error())
		}
		if res.SaveErr != nil {
			fmt.Printf("  save failed: %v\n", res.SaveErr)
		}
		return scheduler.RefreshOutcome(res)
	},
}

// --- News Command ---

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "List cached articles, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		f := news.Filter{}
		f.Category, _ = cmd.Flags().GetString("category")
		f.Source, _ = cmd.Flags().GetString("source")
		f.Limit, _ = cmd.Flags().GetInt("limit")
		f.Skip, _ = cmd.Flags().GetInt("skip")

		articles := a.news.Query(cmd.Context(), f)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(models.NewsResponse{Count: len(articles), News: articles})
		}
		for _, art := range articles {
			fmt.Printf("%s  [%s/%s]  %s\n", art.PublishedAt.Format("2006-01-02 15:04"), art.Source, orNone(art.Category), art.Title)
		}
		fmt.Printf("\n%d articles\n", len(articles))
		return nil
	},
}

func init() {
	newsCmd.Flags().String("category", "", "filter by category")
	newsCmd.Flags().String("source", "", "filter by source")
	newsCmd.Flags().Int("limit", 10, "maximum articles to list (0 for all)")
	newsCmd.Flags().Int("skip", 0, "articles to skip")
	newsCmd.Flags().Bool("json", false, "print JSON")
}

// --- Generate Command ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate future news from the cached articles",
	Long: `Generate plausible future news articles from the cached news.

Examples:
  futurenews generate --time-frame month --style analytical
  futurenews generate --category technology --stream`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		var req models.GenerationRequest
		req.Category, _ = cmd.Flags().GetString("category")
		req.Source, _ = cmd.Flags().GetString("source")
		tf, _ := cmd.Flags().GetString("time-frame")
		req.TimeFrame = models.TimeFrame(tf)
		style, _ := cmd.Flags().GetString("style")
		req.Style = models.Style(style)
		n, _ := cmd.Flags().GetInt("context-size")
		req.SetContextSize(n)
		req.Model, _ = cmd.Flags().GetString("model")

		if stream, _ := cmd.Flags().GetBool("stream"); stream {
			fragments, err := a.gen.Stream(cmd.Context(), req)
			if err != nil {
				return err
			}
			for frag := range fragments {
				if frag.Err != nil {
					return frag.Err
				}
				fmt.Print(frag.Text)
			}
			fmt.Println()
			return nil
		}

		resp, err := a.gen.Generate(cmd.Context(), req)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(resp)
		}
		fmt.Printf("🔮 %d articles (%s ahead, %d context articles)\n\n", len(resp.GeneratedNews), resp.TimeFrame, resp.ContextUsed)
		for _, g := range resp.GeneratedNews {
			fmt.Printf("%s  [%s/%s]\n%s\n%s\n\n", g.PredictedDate.Format("2006-01-02"), g.Source, orNone(g.Category), g.Title, g.Content)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().String("category", "", "context category filter")
	generateCmd.Flags().String("source", "", "context source filter")
	generateCmd.Flags().String("time-frame", "week", "day, week, month or year")
	generateCmd.Flags().String("style", "neutral", "neutral, optimistic, pessimistic, sensational or analytical")
	generateCmd.Flags().Int("context-size", models.DefaultContextSize, "number of context articles (1-50)")
	generateCmd.Flags().String("model", "", "model name (default from config)")
	generateCmd.Flags().Bool("stream", false, "print model output as it arrives")
	generateCmd.Flags().Bool("json", false, "print JSON")
}

// --- Models Command ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available on the Ollama server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, m := range a.gen.Models(cmd.Context()) {
			marker := " "
			if m == a.gen.DefaultModel() {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, m)
		}
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  futurenews System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		// Config summary
		fmt.Println("  Configuration:")
		fmt.Printf("    Categories:    %s\n", strings.Join(cfg.News.Categories, ", "))
		fmt.Printf("    Sources:       %s\n", strings.Join(cfg.News.Sources, ", "))
		fmt.Printf("    Feeds:         %d\n", len(cfg.News.Feeds))
		fmt.Printf("    Interval:      %s\n", cfg.News.FetchInterval)
		fmt.Printf("    Ollama:        %s (model: %s)\n", cfg.Ollama.BaseURL, cfg.Ollama.Model)
		fmt.Printf("    Storage:       %s\n", cfg.Storage.Backend)
		fmt.Printf("    API Server:    %s\n", cfg.API.Addr())
		fmt.Println()

		// API keys status
		fmt.Println("  Secrets:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}
		fmt.Println()

		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			fmt.Printf("  Services:      ❌ %v\n", err)
			fmt.Println("═══════════════════════════════════════")
			return nil
		}
		defer a.Close()

		fmt.Println("  Services:")
		fmt.Printf("    Store:         %s (%d cached articles)\n", a.store.Name(), a.news.Len())
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := a.ollama.Ping(pingCtx); err != nil {
			fmt.Printf("    Ollama:        ❌ %v\n", err)
		} else {
			fmt.Println("    Ollama:        ✅ reachable")
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
