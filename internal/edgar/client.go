// Package edgar reads SEC EDGAR submission indexes and filing documents.
//
// No API key is required, but SEC policy requires a User-Agent header that
// identifies the client (name and contact email).
// Docs: https://www.sec.gov/edgar/sec-api-documentation
package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/seenimoa/nportp/internal/retrieval"
	"github.com/seenimoa/nportp/pkg/models"
)

const (
	// Default EDGAR endpoints.
	DefaultSubmissionsURL = "https://data.sec.gov/submissions"
	DefaultArchivesURL    = "https://www.sec.gov/Archives/edgar/data"
	DefaultFeedURL        = "https://www.sec.gov/cgi-bin/browse-edgar"

	DefaultUserAgent = "nportp/1.0 (contact@example.com)"
)

var (
	// ErrInvalidInput is returned for an identifier that is not a 10-digit CIK.
	ErrInvalidInput = errors.New("invalid CIK: must be exactly 10 digits")
	// ErrIndexUnavailable is returned when the submissions index cannot be fetched or decoded.
	ErrIndexUnavailable = errors.New("filing index unavailable")
	// ErrIndexMalformed is returned when the index's parallel arrays disagree in length.
	ErrIndexMalformed = errors.New("filing index malformed")
)

var cikPattern = regexp.MustCompile(`^[0-9]{10}$`)

// ValidateCIK checks that cik is exactly ten ASCII digits.
func ValidateCIK(cik string) error {
	if !cikPattern.MatchString(cik) {
		return fmt.Errorf("%w: %q", ErrInvalidInput, cik)
	}
	return nil
}

// Fetcher is the retrieval capability the client depends on.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, url string, headers map[string]string, policy retrieval.Policy) ([]byte, retrieval.Attempt, error)
}

// Config holds endpoint and header settings for the client.
type Config struct {
	SubmissionsURL string
	ArchivesURL    string
	FeedURL        string
	UserAgent      string
	IndexPolicy    retrieval.Policy
	FilingPolicy   retrieval.Policy
}

// Client reads EDGAR indexes and documents through a Fetcher.
type Client struct {
	cfg     Config
	fetcher Fetcher
}

// NewClient creates a client. Empty URLs fall back to the public EDGAR endpoints.
func NewClient(cfg Config, fetcher Fetcher) *Client {
	if cfg.SubmissionsURL == "" {
		cfg.SubmissionsURL = DefaultSubmissionsURL
	}
	if cfg.ArchivesURL == "" {
		cfg.ArchivesURL = DefaultArchivesURL
	}
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	cfg.SubmissionsURL = strings.TrimRight(cfg.SubmissionsURL, "/")
	cfg.ArchivesURL = strings.TrimRight(cfg.ArchivesURL, "/")
	return &Client{cfg: cfg, fetcher: fetcher}
}

// --- Shared helpers ---

func (c *Client) indexHeaders(rawURL string) map[string]string {
	h := map[string]string{
		"User-Agent":      c.cfg.UserAgent,
		"Accept-Encoding": "gzip, deflate",
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		h["Host"] = u.Host
	}
	return h
}

func (c *Client) documentHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      c.cfg.UserAgent,
		"Accept":          "text/html, application/xml;q=0.9, */*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate",
	}
}

// IndexURL returns the submissions URL for cik.
func (c *Client) IndexURL(cik string) string {
	return fmt.Sprintf("%s/CIK%s.json", c.cfg.SubmissionsURL, cik)
}

// FilingURL returns the archive URL of a filing's primary document.
func (c *Client) FilingURL(cik string, ref models.FilingReference) string {
	return fmt.Sprintf("%s/%s/%s/%s",
		c.cfg.ArchivesURL, cik, strings.ReplaceAll(ref.AccessionNumber, "-", ""), ref.PrimaryDocument)
}

// FetchIndex retrieves and decodes the submissions index for cik.
// The Attempt reports the retry state of the underlying fetch.
func (c *Client) FetchIndex(ctx context.Context, cik string) (*models.FilingIndex, retrieval.Attempt, error) {
	if err := ValidateCIK(cik); err != nil {
		return nil, retrieval.Attempt{}, err
	}

	u := c.IndexURL(cik)
	body, attempt, err := c.fetcher.FetchWithRetry(ctx, u, c.indexHeaders(u), c.cfg.IndexPolicy)
	if err != nil {
		return nil, attempt, fmt.Errorf("%w: %s after %d attempts: %w", ErrIndexUnavailable, u, attempt.Attempts, err)
	}

	var resp submissionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, attempt, fmt.Errorf("%w: parse SEC JSON: %w", ErrIndexUnavailable, err)
	}
	idx, err := buildIndex(cik, &resp)
	return idx, attempt, err
}

// buildIndex zips the parallel arrays of the recent filings block.
func buildIndex(cik string, resp *submissionsResponse) (*models.FilingIndex, error) {
	recent := resp.Filings.Recent
	n := len(recent.AccessionNumber)
	if len(recent.FilingDate) != n || len(recent.Form) != n || len(recent.PrimaryDocument) != n {
		return nil, fmt.Errorf("%w: accessionNumber=%d filingDate=%d form=%d primaryDocument=%d",
			ErrIndexMalformed, n, len(recent.FilingDate), len(recent.Form), len(recent.PrimaryDocument))
	}

	idx := &models.FilingIndex{
		CIK:        cik,
		EntityName: resp.Name,
		Filings:    make([]models.FilingReference, 0, n),
	}
	for i := 0; i < n; i++ {
		idx.Filings = append(idx.Filings, models.FilingReference{
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      parseSECDate(recent.FilingDate[i]),
			FilingDateRaw:   recent.FilingDate[i],
			FormType:        recent.Form[i],
			PrimaryDocument: recent.PrimaryDocument[i],
		})
	}
	return idx, nil
}

// FilterByFormType returns the filings of the given form type in index order.
func FilterByFormType(idx *models.FilingIndex, formType string) []models.FilingReference {
	if idx == nil {
		return nil
	}
	var out []models.FilingReference
	for _, f := range idx.Filings {
		if f.FormType == formType {
			out = append(out, f)
		}
	}
	return out
}

// FetchFiling retrieves the primary document of a filing.
func (c *Client) FetchFiling(ctx context.Context, cik string, ref models.FilingReference) ([]byte, retrieval.Attempt, error) {
	return c.fetcher.FetchWithRetry(ctx, c.FilingURL(cik, ref), c.documentHeaders(), c.cfg.FilingPolicy)
}
