package edgar

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/mmcdole/gofeed/atom"

	"github.com/seenimoa/nportp/pkg/models"
)

// accessionPattern matches accession numbers embedded in feed ids and links,
// e.g. "urn:tag:sec.gov,2008:accession-number=0001752724-24-000123".
var accessionPattern = regexp.MustCompile(`\d{10}-\d{2}-\d{6}`)

// FeedURL returns the company Atom feed URL for cik and formType.
func (c *Client) FeedURL(cik, formType string) string {
	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", cik)
	q.Set("type", formType)
	q.Set("dateb", "")
	q.Set("owner", "include")
	q.Set("count", "40")
	q.Set("output", "atom")
	return c.cfg.FeedURL + "?" + q.Encode()
}

// LatestFromFeed lists the most recent filings of formType announced on the
// company Atom feed. It issues a single request and never touches the ledger.
func (c *Client) LatestFromFeed(ctx context.Context, cik, formType string) ([]models.FeedEntry, error) {
	if err := ValidateCIK(cik); err != nil {
		return nil, err
	}

	u := c.FeedURL(cik, formType)
	body, _, err := c.fetcher.FetchWithRetry(ctx, u, c.indexHeaders(u), c.cfg.IndexPolicy)
	if err != nil {
		return nil, fmt.Errorf("sec feed %s: %w", cik, err)
	}

	fp := &atom.Parser{}
	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sec feed: %w", err)
	}
	return feedEntries(feed, formType), nil
}

// feedEntries keeps the entries whose form-type category term is formType.
// EDGAR labels that category "form type"; the form itself is in the term.
func feedEntries(feed *atom.Feed, formType string) []models.FeedEntry {
	var entries []models.FeedEntry
	for _, item := range feed.Entries {
		form := entryForm(item)
		if form == "" {
			form = formType
		}
		if form != formType {
			continue
		}

		e := models.FeedEntry{
			FormType: form,
			Title:    item.Title,
			Link:     entryLink(item),
		}
		if acc := accessionPattern.FindString(item.ID); acc != "" {
			e.AccessionNumber = acc
		} else {
			e.AccessionNumber = accessionPattern.FindString(e.Link)
		}
		if item.UpdatedParsed != nil {
			e.Updated = *item.UpdatedParsed
		} else if item.PublishedParsed != nil {
			e.Updated = *item.PublishedParsed
		}
		entries = append(entries, e)
	}
	return entries
}

func entryForm(e *atom.Entry) string {
	for _, c := range e.Categories {
		if c != nil && c.Term != "" {
			return c.Term
		}
	}
	return ""
}

func entryLink(e *atom.Entry) string {
	for _, l := range e.Links {
		if l != nil && (l.Rel == "" || l.Rel == "alternate") {
			return l.Href
		}
	}
	return ""
}
