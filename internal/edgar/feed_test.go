package edgar

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/mmcdole/gofeed/atom"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>EXAMPLE ETF TRUST  (0001234567)</title>
  <id>https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&amp;CIK=0001234567</id>
  <updated>2024-02-01T16:01:02-05:00</updated>
  <entry>
    <category label="form type" scheme="https://www.sec.gov/" term="NPORT-P" />
    <id>urn:tag:sec.gov,2008:accession-number=0001234567-24-000002</id>
    <link href="https://www.sec.gov/Archives/edgar/data/1234567/000123456724000002/0001234567-24-000002-index.htm" rel="alternate" type="text/html" />
    <title>NPORT-P  - Monthly Portfolio Investments Report on Form N-PORT (Public)</title>
    <updated>2024-02-01T16:01:02-05:00</updated>
  </entry>
  <entry>
    <category label="form type" scheme="https://www.sec.gov/" term="N-CSR" />
    <id>urn:tag:sec.gov,2008:accession-number=0001234567-24-000003</id>
    <link href="https://www.sec.gov/Archives/edgar/data/1234567/000123456724000003/0001234567-24-000003-index.htm" rel="alternate" type="text/html" />
    <title>N-CSR  - Certified Shareholder Report</title>
    <updated>2024-03-01T16:01:02-05:00</updated>
  </entry>
</feed>`

func TestLatestFromFeed(t *testing.T) {
	f := &fakeFetcher{body: []byte(atomFeed)}
	c := NewClient(Config{}, f)

	entries, err := c.LatestFromFeed(context.Background(), "0001234567", "NPORT-P")
	if err != nil {
		t.Fatalf("LatestFromFeed() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 NPORT-P entry, got %d", len(entries))
	}
	e := entries[0]
	if e.AccessionNumber != "0001234567-24-000002" {
		t.Errorf("AccessionNumber: got %q", e.AccessionNumber)
	}
	if e.Updated.IsZero() {
		t.Error("expected parsed updated time")
	}

	u, err := url.Parse(f.urls[0])
	if err != nil {
		t.Fatalf("feed url: %v", err)
	}
	q := u.Query()
	if q.Get("CIK") != "0001234567" || q.Get("type") != "NPORT-P" || q.Get("output") != "atom" {
		t.Errorf("unexpected feed query: %s", u.RawQuery)
	}
}

func TestLatestFromFeedInvalidCIK(t *testing.T) {
	f := &fakeFetcher{body: []byte(atomFeed)}
	c := NewClient(Config{}, f)
	if _, err := c.LatestFromFeed(context.Background(), "abc", "NPORT-P"); err == nil {
		t.Fatal("expected error for invalid CIK")
	}
	if len(f.urls) != 0 {
		t.Errorf("expected no fetch, got %d", len(f.urls))
	}
}

func TestFeedEntriesUseCategoryTerm(t *testing.T) {
	feed, err := (&atom.Parser{}).Parse(strings.NewReader(atomFeed))
	if err != nil {
		t.Fatalf("parse feed: %v", err)
	}
	if got := feed.Entries[0].Categories[0].Label; got != "form type" {
		t.Fatalf("fixture label: got %q", got)
	}

	entries := feedEntries(feed, "N-CSR")
	if len(entries) != 1 {
		t.Fatalf("expected 1 N-CSR entry, got %d", len(entries))
	}
	e := entries[0]
	if e.FormType != "N-CSR" {
		t.Errorf("FormType: got %q", e.FormType)
	}
	if e.AccessionNumber != "0001234567-24-000003" {
		t.Errorf("AccessionNumber: got %q", e.AccessionNumber)
	}
	if !strings.HasSuffix(e.Link, "0001234567-24-000003-index.htm") {
		t.Errorf("Link: got %q", e.Link)
	}

	if got := feedEntries(feed, "form type"); len(got) != 0 {
		t.Errorf("label must not match as a form type, got %d entries", len(got))
	}
}
