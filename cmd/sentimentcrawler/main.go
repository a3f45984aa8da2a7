package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/SentimentCrawler/internal/config"
	"github.com/TobiSchelling/SentimentCrawler/internal/database"
	"github.com/TobiSchelling/SentimentCrawler/internal/logging"
	"github.com/TobiSchelling/SentimentCrawler/internal/scheduler"
	"github.com/TobiSchelling/SentimentCrawler/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sentimentcrawler",
	Short:         "Sentiment of social posts about a search term",
	Long:          "SentimentCrawler fetches recent posts for a search term, cleans them, labels each one positive, neutral or negative, and reports the counts.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		switch {
		case err == nil:
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		case configPath == "":
			cfg = config.Default()
		default:
			return err
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		if path != "" {
			logger.Debug("Loaded config", zap.String("path", path))
		} else {
			logger.Debug("No config file found, using built-in defaults")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("sentimentcrawler", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/sentimentcrawler/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the search term, and put the API credentials in the env file it names.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, credentials and stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Search:")
		fmt.Printf("  Source: %s\n", cfg.Search.Source)
		fmt.Printf("  Query: %s (%s), limit %d\n", cfg.Search.Query, cfg.Search.Language, cfg.Search.Limit)
		fmt.Printf("  Scorer: %s\n", cfg.Scoring.Scorer)

		creds, err := config.LoadCredentials(cfg.Credentials.EnvFile)
		if err != nil {
			return err
		}
		fmt.Printf("\nCredentials (%s):\n", cfg.Credentials.EnvFile)
		for _, name := range config.SearchCredentialNames {
			state := "missing"
			if _, ok := creds.Get(name); ok {
				state = "set"
			}
			fmt.Printf("  %s: %s\n", name, state)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Printf("\nRuns (%s):\n", db.Path())
		fmt.Printf("  Total: %d over %d queries\n", stats.TotalRuns, stats.DistinctQueries)
		fmt.Printf("  Posts: %d positive, %d neutral, %d negative, %d dropped\n",
			stats.Positive, stats.Neutral, stats.Negative, stats.DroppedPosts)
		if stats.LastRunAt != nil {
			fmt.Printf("  Last run: %s\n", database.FormatRunTime(*stats.LastRunAt))
		}

		sched, err := scheduler.NewScheduler(cfg.Schedule.Timezone, logger)
		if err == nil {
			if next, err := sched.NextAfter(cfg.Schedule.Cron, timeNow()); err == nil {
				fmt.Printf("\nSchedule: %s (next %s)\n", cfg.Schedule.Cron, next.Format("Jan 02 15:04 MST"))
			}
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, db, port, logger.Named("server"))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- watch command ---

var (
	watchCron string
	watchNow  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [query]",
	Short: "Run the pipeline on a schedule, saving every run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRunFlags(cmd, args); err != nil {
			return err
		}
		spec := cfg.Schedule.Cron
		if watchCron != "" {
			spec = watchCron
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sched, err := scheduler.NewScheduler(cfg.Schedule.Timezone, logger.Named("scheduler"))
		if err != nil {
			return err
		}

		job := func(ctx context.Context) {
			if err := executeRun(ctx, db, true); err != nil {
				logger.Error("Scheduled run failed", zap.Error(err))
			}
		}
		if err := sched.Schedule(spec, job); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		if watchNow {
			job(ctx)
		}

		fmt.Printf("Watching %q on schedule %q. Press Ctrl+C to stop.\n", cfg.Search.Query, spec)
		sched.Run(ctx)
		return nil
	},
}

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "Cron schedule (overrides schedule.cron)")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "Run once immediately before waiting for the schedule")
}

func openDB() (*database.DB, error) {
	return database.OpenInDir(cfg.GetDataDir(), logger.Named("database"))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// errReported marks an error that has already been shown to the user.
var errReported = errors.New("run failed")
