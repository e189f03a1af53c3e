// Package runner sequences one extraction run for a fund: fetch the filing
// index, then fetch, extract, persist and ledger each candidate filing in
// index order.
//
// Only an invalid CIK and an unavailable index abort a run. Every per-filing
// failure is logged and the filing is left out of the ledger so the next run
// retries it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/nportp/internal/edgar"
	"github.com/seenimoa/nportp/internal/extract"
	"github.com/seenimoa/nportp/internal/ledger"
	"github.com/seenimoa/nportp/internal/metrics"
	"github.com/seenimoa/nportp/internal/output"
	"github.com/seenimoa/nportp/internal/retrieval"
	"github.com/seenimoa/nportp/pkg/models"
)

// ErrFilingFetchFailed marks a filing whose document could not be retrieved.
var ErrFilingFetchFailed = errors.New("filing fetch failed")

// Stages at which a filing can fail.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StagePersist = "persist"
)

// KindCircuitOpen labels filings refused by an open circuit breaker.
const KindCircuitOpen retrieval.ErrorKind = "circuit_open"

// IndexClient is the EDGAR capability the runner depends on.
type IndexClient interface {
	FetchIndex(ctx context.Context, cik string) (*models.FilingIndex, retrieval.Attempt, error)
	FetchFiling(ctx context.Context, cik string, ref models.FilingReference) ([]byte, retrieval.Attempt, error)
}

// Extractor turns a filing document into holdings.
type Extractor func(body []byte) (*models.ExtractedFiling, error)

// Options configures a Runner.
type Options struct {
	OutputDir string        // root; each CIK gets its own subdirectory
	Format    output.Format // csv or xlsx
	FormType  string        // defaults to NPORT-P
	Extract   Extractor     // defaults to extract.ExtractBytes
	Logger    *slog.Logger
}

// Runner executes runs. It holds no per-run state.
type Runner struct {
	client IndexClient
	opts   Options
}

// New creates a Runner.
func New(client IndexClient, opts Options) *Runner {
	if opts.FormType == "" {
		opts.FormType = models.FormNPORTP
	}
	if opts.Extract == nil {
		opts.Extract = extract.ExtractBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Format == "" {
		opts.Format = output.FormatCSV
	}
	return &Runner{client: client, opts: opts}
}

// FilingFailure describes one filing that was skipped because of an error.
type FilingFailure struct {
	AccessionNumber string
	Stage           string
	Kind            retrieval.ErrorKind
	Attempts        int
	Err             error
}

// Summary is the outcome of a run.
type Summary struct {
	RunID      string
	CIK        string
	EntityName string
	Candidates int
	Skipped    int
	Processed  int
	Failed     []FilingFailure
	Reports    *ReportSet
	LedgerDone int // candidates recorded in the ledger at the end of the run
	LedgerPath string
	Metrics    *metrics.RunMetrics
}

// CIKDir returns the per-CIK output directory.
func (r *Runner) CIKDir(cik string) string {
	return filepath.Join(r.opts.OutputDir, cik)
}

// Run processes every candidate filing of cik not yet in the ledger.
// The returned error is non-nil only for run-fatal conditions or cancellation;
// per-filing failures are reported in Summary.Failed.
func (r *Runner) Run(ctx context.Context, cik string) (*Summary, error) {
	if err := edgar.ValidateCIK(cik); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := r.opts.Logger.With("run_id", runID, "cik", cik)
	m := metrics.New(cik)

	sum := &Summary{
		RunID:      runID,
		CIK:        cik,
		Reports:    NewReportSet(),
		LedgerPath: ledger.Path(r.opts.OutputDir, cik),
		Metrics:    m,
	}

	log.Info("run_started", "form_type", r.opts.FormType)
	idx, attempt, err := r.client.FetchIndex(ctx, cik)
	m.Fetch(metrics.TargetIndex, attempt.Attempts)
	if err != nil {
		log.Error("index_unavailable", "error", err)
		return sum, err
	}
	sum.EntityName = idx.EntityName

	candidates := edgar.FilterByFormType(idx, r.opts.FormType)
	sum.Candidates = len(candidates)
	log.Info("index_loaded", "entity", idx.EntityName, "filings", len(idx.Filings), "candidates", len(candidates))

	progress := ledger.Load(sum.LedgerPath, cik, log)
	sink := output.NewSink(r.CIKDir(cik), r.opts.Format)

	for i, ref := range candidates {
		if err := ctx.Err(); err != nil {
			log.Warn("run_cancelled", "remaining", len(candidates)-i)
			r.finish(sum, candidates, progress, log)
			return sum, err
		}

		flog := log.With("accession", ref.AccessionNumber, "position", i+1, "of", len(candidates))
		if progress.Done(ref.AccessionNumber) {
			flog.Debug("filing_skipped")
			sum.Skipped++
			m.Filing(metrics.StatusSkipped, 0)
			continue
		}

		start := time.Now()
		if fail := r.processFiling(ctx, cik, ref, sink, progress, sum.Reports, m, flog); fail != nil {
			sum.Failed = append(sum.Failed, *fail)
			m.Filing(metrics.StatusFailed, time.Since(start))
			continue
		}
		sum.Processed++
		m.Filing(metrics.StatusProcessed, time.Since(start))
	}

	r.finish(sum, candidates, progress, log)
	return sum, nil
}

// processFiling runs Fetch -> Extract -> Persist -> MarkDone for one filing.
func (r *Runner) processFiling(
	ctx context.Context,
	cik string,
	ref models.FilingReference,
	sink *output.Sink,
	progress *ledger.Ledger,
	reports *ReportSet,
	m *metrics.RunMetrics,
	log *slog.Logger,
) *FilingFailure {
	body, attempt, err := r.client.FetchFiling(ctx, cik, ref)
	m.Fetch(metrics.TargetFiling, attempt.Attempts)
	if err != nil {
		kind, _ := retrieval.Classify(err)
		if errors.Is(err, retrieval.ErrCircuitOpen) {
			kind = KindCircuitOpen
		}
		log.Error("filing_fetch_failed", "attempts", attempt.Attempts, "kind", string(kind), "error", err)
		return &FilingFailure{
			AccessionNumber: ref.AccessionNumber,
			Stage:           StageFetch,
			Kind:            kind,
			Attempts:        attempt.Attempts,
			Err:             fmt.Errorf("%w: %s: %w", ErrFilingFetchFailed, ref.AccessionNumber, err),
		}
	}

	filing, err := r.opts.Extract(body)
	if err != nil {
		log.Error("filing_extract_failed", "bytes", len(body), "error", err)
		return &FilingFailure{
			AccessionNumber: ref.AccessionNumber,
			Stage:           StageExtract,
			Attempts:        attempt.Attempts,
			Err:             err,
		}
	}

	path, err := sink.Write(filing)
	if err != nil {
		log.Error("filing_persist_failed", "reporting_date", filing.ReportingDate, "error", err)
		return &FilingFailure{
			AccessionNumber: ref.AccessionNumber,
			Stage:           StagePersist,
			Attempts:        attempt.Attempts,
			Err:             err,
		}
	}
	if prev, replaced := reports.Put(filing.ReportingDate, path, ref.AccessionNumber); replaced {
		log.Warn("reporting_date_overwritten", "reporting_date", filing.ReportingDate, "previous_accession", prev, "path", path)
	}

	if err := progress.MarkDone(ref.AccessionNumber); err != nil {
		log.Warn("ledger_save_failed", "error", err)
	}
	log.Info("filing_processed",
		"reporting_date", filing.ReportingDate,
		"holdings", len(filing.Holdings),
		"attempts", attempt.Attempts,
		"path", path,
	)
	return nil
}

func (r *Runner) finish(sum *Summary, candidates []models.FilingReference, progress *ledger.Ledger, log *slog.Logger) {
	for _, ref := range candidates {
		if progress.Done(ref.AccessionNumber) {
			sum.LedgerDone++
		}
	}
	sum.Metrics.LedgerEntries(progress.Len())
	log.Info("run_finished",
		"candidates", sum.Candidates,
		"ledger_done", sum.LedgerDone,
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"failed", len(sum.Failed),
		"reports", sum.Reports.Len(),
	)
}
