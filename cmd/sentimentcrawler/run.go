package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/SentimentCrawler/internal/config"
	"github.com/TobiSchelling/SentimentCrawler/internal/database"
	"github.com/TobiSchelling/SentimentCrawler/internal/pipeline"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

var timeNow = time.Now

var (
	runLang    string
	runLimit   int
	runSource  string
	runScorer  string
	runTimeout time.Duration
	noSave     bool
	showPosts  bool
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Run the pipeline once: fetch -> normalize -> classify -> aggregate",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRunFlags(cmd, args); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		var db *database.DB
		if !noSave {
			var err error
			db, err = openDB()
			if err != nil {
				return err
			}
			defer db.Close()
		}
		return executeRun(ctx, db, !noSave)
	},
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not store the run in the history database")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runLang, "lang", "l", "", "Language filter (overrides search.language)")
	cmd.Flags().IntVarP(&runLimit, "limit", "n", 0, fmt.Sprintf("Maximum posts to fetch, at most %d", config.MaxSearchLimit))
	cmd.Flags().StringVar(&runSource, "source", "", "Search source: twitter or feed")
	cmd.Flags().StringVar(&runScorer, "scorer", "", "Polarity scorer: lexicon or llm")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Search request timeout")
	cmd.Flags().BoolVar(&showPosts, "show-posts", false, "Print every classified post")
}

// applyRunFlags folds the query argument and changed flags into cfg.
func applyRunFlags(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg.Search.Query = args[0]
	}
	f := cmd.Flags()
	if f.Changed("lang") {
		cfg.Search.Language = runLang
	}
	if f.Changed("limit") {
		cfg.Search.Limit = runLimit
	}
	if f.Changed("source") {
		cfg.Search.Source = runSource
	}
	if f.Changed("scorer") {
		cfg.Scoring.Scorer = runScorer
	}
	if f.Changed("timeout") {
		cfg.Search.Timeout = runTimeout
	}
	if strings.TrimSpace(cfg.Search.Query) == "" {
		return fmt.Errorf("no search query: pass one as an argument or set search.query")
	}
	return nil
}

// executeRun runs the pipeline with the current cfg, prints the outcome and
// saves it when save is set.
func executeRun(ctx context.Context, db *database.DB, save bool) error {
	creds, err := config.LoadCredentials(cfg.Credentials.EnvFile)
	if err != nil {
		return err
	}

	pipe, err := pipeline.FromConfig(ctx, cfg, creds, logger)
	if err != nil {
		return err
	}

	req := pipeline.Request{
		Query:    cfg.Search.Query,
		Language: cfg.Search.Language,
		Limit:    cfg.Search.Limit,
	}
	res, err := pipe.Run(ctx, req)

	for i, step := range res.Steps {
		fmt.Printf("\nStep %d/4: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %s\n", pipeline.Describe(step.Err))
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n%s\n", pipeline.Describe(err))
		return errReported
	}

	fmt.Println()
	fmt.Print(res.Report.Markdown(req.Query))

	if len(res.Dropped) > 0 {
		fmt.Printf("\n%d posts could not be classified:\n", len(res.Dropped))
		for _, d := range res.Dropped {
			fmt.Printf("  - %s\n", d.Err)
		}
	}

	if showPosts {
		fmt.Println()
		printPosts(res.Report.Posts)
	}

	if !save || db == nil {
		return nil
	}
	id, err := db.SaveRun(database.RunMeta{
		Query:     req.Query,
		Language:  req.Language,
		Source:    cfg.Search.Source,
		Scorer:    cfg.Scoring.Scorer,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
	}, res.Report, res.Dropped)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	fmt.Printf("\nSaved as run %d. Run 'sentimentcrawler serve' and open /run/%d to view it.\n", id, id)
	return nil
}

func printPosts(classified []posts.ClassifiedPost) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSENTIMENT\tPOST")
	for i, p := range classified {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, p.Label, oneLine(p.RawText, 100))
	}
	w.Flush()
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

// --- history command ---

var (
	historyLimit int
	historyQuery string
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List stored runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %s", args[0])
			}
			return showRun(db, id)
		}

		var runs []database.Run
		if historyQuery != "" {
			runs, err = db.GetRunsForQuery(historyQuery, historyLimit)
		} else {
			runs, err = db.GetRecentRuns(historyLimit)
		}
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored yet. Create one with: sentimentcrawler run")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tQUERY\tSOURCE\tPOS\tNEU\tNEG\tDROPPED")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				r.ID, database.FormatRunTime(r.StartedAt), r.Query, r.Source,
				r.Positive, r.Neutral, r.Negative, r.Dropped)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	historyCmd.Flags().StringVarP(&historyQuery, "query", "q", "", "Only list runs for this search term")
	historyCmd.Flags().BoolVar(&showPosts, "show-posts", false, "Print every classified post of the run")
}

func showRun(db *database.DB, id int64) error {
	d, err := db.GetRun(id)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("run %d not found", id)
	}

	fmt.Printf("Run %d: %s, %s, %s scorer, %s\n\n",
		d.ID, database.FormatRunTime(d.StartedAt), d.Source, d.Scorer, database.FormatDuration(d.DurationMS))
	report := d.Report()
	fmt.Print(report.Markdown(d.Query))
	if showPosts {
		fmt.Println()
		printPosts(report.Posts)
	}
	return nil
}
