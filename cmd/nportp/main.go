// nportp extracts NPORT-P portfolio holdings from SEC EDGAR filings.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seenimoa/nportp/internal/config"
	"github.com/seenimoa/nportp/internal/edgar"
	"github.com/seenimoa/nportp/internal/infra"
	"github.com/seenimoa/nportp/internal/ledger"
	"github.com/seenimoa/nportp/internal/logging"
	"github.com/seenimoa/nportp/internal/output"
	"github.com/seenimoa/nportp/internal/retrieval"
	"github.com/seenimoa/nportp/internal/runner"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nportp",
	Short: "Extract portfolio holdings from SEC NPORT-P filings",
	Long: `nportp downloads every NPORT-P filing of a fund from SEC EDGAR,
extracts the Part C holdings and writes one CSV or XLSX file per
reporting date. A progress ledger makes repeated runs incremental.`,
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
		if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
			cfg.Output.Dir = dir
		}
		logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/nportp.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("output-dir", "", "output directory override")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(configCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nportp %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run [cik]",
	Short: "Extract holdings from every unprocessed NPORT-P filing of a fund",
	Long: `Fetch the fund's filing index, then fetch, extract and persist each
NPORT-P filing not yet recorded in the progress ledger. The CIK is
prompted for when omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cik string
		if len(args) == 1 {
			cik = strings.TrimSpace(args[0])
		} else {
			var err error
			if cik, err = promptCIK(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
		}

		format, err := output.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r := runner.New(newEDGARClient(), runner.Options{
			OutputDir: cfg.Output.Dir,
			Format:    format,
			FormType:  cfg.SEC.FormType,
			Logger:    logger,
		})
		sum, runErr := r.Run(ctx, cik)
		if sum != nil {
			printSummary(cmd.OutOrStdout(), sum)
			if path := cfg.Metrics.Textfile; path != "" {
				if err := sum.Metrics.WriteTextfile(path); err != nil {
					logger.Warn("metrics_write_failed", "path", path, "error", err)
				}
			}
		}
		return runErr
	},
}

func promptCIK(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter fund CIK (10 digits): ")
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read CIK: %w", err)
		}
		return "", errors.New("no CIK given")
	}
	return strings.TrimSpace(sc.Text()), nil
}

func printSummary(w io.Writer, sum *runner.Summary) {
	fmt.Fprintln(w, "═══════════════════════════════════════")
	fmt.Fprintf(w, "  NPORT-P run %s\n", sum.RunID)
	fmt.Fprintln(w, "═══════════════════════════════════════")
	fmt.Fprintf(w, "  CIK:          %s\n", sum.CIK)
	if sum.EntityName != "" {
		fmt.Fprintf(w, "  Entity:       %s\n", sum.EntityName)
	}
	fmt.Fprintf(w, "  Candidates:   %d\n", sum.Candidates)
	fmt.Fprintf(w, "  Processed:    %d\n", sum.Processed)
	fmt.Fprintf(w, "  Skipped:      %d\n", sum.Skipped)
	fmt.Fprintf(w, "  Failed:       %d\n", len(sum.Failed))
	fmt.Fprintf(w, "  Ledger done:  %d of %d\n", sum.LedgerDone, sum.Candidates)

	if len(sum.Failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Failed filings (retried next run):")
		for _, f := range sum.Failed {
			kind := string(f.Kind)
			if kind == "" {
				kind = "-"
			}
			fmt.Fprintf(w, "    %-22s %-8s %-12s %v\n", f.AccessionNumber, f.Stage, kind, f.Err)
		}
	}
	if sum.Reports != nil && sum.Reports.Len() > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Reports written:")
		for _, rep := range sum.Reports.All() {
			fmt.Fprintf(w, "    %-12s %s\n", rep.ReportingDate, rep.Path)
		}
	}
	fmt.Fprintln(w, "═══════════════════════════════════════")
}

// newEDGARClient wires transport, pacing, retries and the breaker.
func newEDGARClient() *edgar.Client {
	transport := infra.NewHTTPTransport(&http.Client{}, cfg.Retry.RequestTimeout)
	fetcher := retrieval.New(transport,
		retrieval.WithPacer(infra.NewPacer(cfg.SEC.RequestsPerSecond)),
		retrieval.WithLogger(logger),
		retrieval.WithBreaker(retrieval.BreakerConfig{
			Enabled:             cfg.Breaker.Enabled,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
		}),
	)
	return edgar.NewClient(edgar.Config{
		SubmissionsURL: cfg.SEC.SubmissionsURL,
		ArchivesURL:    cfg.SEC.ArchivesURL,
		FeedURL:        cfg.SEC.FeedURL,
		UserAgent:      cfg.SEC.UserAgent,
		IndexPolicy:    retrieval.Policy{MaxAttempts: cfg.Retry.IndexAttempts, BaseDelay: cfg.Retry.BaseDelay},
		FilingPolicy:   retrieval.Policy{MaxAttempts: cfg.Retry.FilingAttempts, BaseDelay: cfg.Retry.BaseDelay},
	}, fetcher)
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status <cik>",
	Short: "Show the progress ledger of a fund",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cik := strings.TrimSpace(args[0])
		if err := edgar.ValidateCIK(cik); err != nil {
			return err
		}
		path := ledger.Path(cfg.Output.Dir, cik)
		l := ledger.Load(path, cik, logger)

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "  Ledger:     %s\n", path)
		fmt.Fprintf(w, "  Processed:  %d\n", l.Len())
		for _, acc := range l.Processed() {
			fmt.Fprintf(w, "    %s\n", acc)
		}
		return nil
	},
}

// --- Latest Command ---

var latestCmd = &cobra.Command{
	Use:   "latest <cik>",
	Short: "List recent filings from the EDGAR company feed",
	Long:  "Preview the latest filings announced on the company Atom feed. Nothing is downloaded or recorded.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cik := strings.TrimSpace(args[0])
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		entries, err := newEDGARClient().LatestFromFeed(ctx, cik, cfg.SEC.FormType)
		if err != nil {
			return err
		}

		l := ledger.Load(ledger.Path(cfg.Output.Dir, cik), cik, logger)
		w := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(w, "No %s filings on the feed for %s.\n", cfg.SEC.FormType, cik)
			return nil
		}
		for _, e := range entries {
			mark := " "
			if e.AccessionNumber != "" && l.Done(e.AccessionNumber) {
				mark = "✓"
			}
			fmt.Fprintf(w, "  %s %-22s %s  %s\n", mark, e.AccessionNumber, e.Updated.Format("2006-01-02"), e.Title)
		}
		return nil
	},
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprint(w, string(out))

		id := config.CheckIdentity(cfg)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "# User-Agent: %s (source: %s)\n", id.Masked, id.Source)
		if id.Source == config.IdentitySourceDefault || !id.HasEmail {
			fmt.Fprintln(w, "# warning: SEC expects a User-Agent with your name and email; set NPORTP_SEC_USER_AGENT")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
