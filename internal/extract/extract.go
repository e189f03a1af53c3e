// Package extract pulls the reporting date and per-holding fields out of the
// HTML rendering of an NPORT-P filing.
//
// The rendering has no stable schema beyond section headings and two-column
// label/value table rows, so every lookup is anchored on label text: find a
// heading, then the next table after it, then the cell whose text contains a
// label, and take the following sibling cell as the value. "Next" always means
// the nearest subsequent element in document (pre-order) order.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/seenimoa/nportp/pkg/models"
)

// ErrReportingDateNotFound is returned when the Part A reporting date anchor
// chain is broken. No holdings are returned with it.
var ErrReportingDateNotFound = errors.New("reporting date not found")

// Section headings are h1; item headings are h4.
const (
	sectionTag = "h1"
	itemTag    = "h4"
	tableTag   = "table"
	cellTag    = "td"
)

// Anchor texts as rendered by the EDGAR NPORT-P stylesheet.
const (
	partAHeading      = "NPORT-P: Part A: General Information"
	reportingPeriod   = "Item A.3. Reporting period"
	reportingDateCell = "b. Date as of which information is reported"

	partCHeading  = "NPORT-P: Part C: Schedule of Portfolio Investments"
	itemC1Heading = "Item C.1. Identification of investment"
	issuerCell    = "a. Name of issuer (if any)"

	itemC2Heading = "Item C.2. Amount of each investment"
	balanceCell   = "Balance"
	valueUSDCell  = "Report values in U.S. dollars"
	pctAssetsCell = "Percentage value compared to net assets of the Fund"
)

// amountLabels maps Item C.2 labels to fields, in column order.
var amountLabels = []struct {
	label string
	field models.HoldingField
}{
	{balanceCell, models.FieldShares},
	{valueUSDCell, models.FieldValueUSD},
	{pctAssetsCell, models.FieldPctNetAssets},
}

// Parse builds a document tree from raw HTML.
func Parse(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse filing HTML: %w", err)
	}
	return doc, nil
}

// ExtractBytes parses body and extracts it.
func ExtractBytes(body []byte) (*models.ExtractedFiling, error) {
	doc, err := Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return Extract(doc)
}

// Extract locates the reporting date and every holding block in doc.
// A document without a reporting date fails as a whole.
func Extract(doc *goquery.Document) (*models.ExtractedFiling, error) {
	t := newTree(doc)

	date, ok := t.reportingDate()
	if !ok {
		return nil, ErrReportingDateNotFound
	}

	filing := &models.ExtractedFiling{ReportingDate: date}
	for _, heading := range t.findAll(sectionTag, partCHeading) {
		h := t.holding(heading)
		if h.Len() == 0 {
			continue
		}
		filing.Holdings = append(filing.Holdings, h)
	}
	return filing, nil
}

// reportingDate walks Part A -> Item A.3 -> table -> date cell. The first
// Part A heading with a complete chain wins.
func (t *tree) reportingDate() (string, bool) {
	for _, heading := range t.findAll(sectionTag, partAHeading) {
		item, ok := t.findNext(heading, itemTag, reportingPeriod)
		if !ok {
			continue
		}
		table, ok := t.findNext(item, tableTag, "")
		if !ok {
			continue
		}
		if date, ok := t.labelValue(table, reportingDateCell); ok && date != "" {
			return date, true
		}
	}
	return "", false
}

// holding collects the fields of the holding block that starts at heading.
// Item lookups search forward from the heading, not inside it: the blocks
// are flat runs of siblings.
func (t *tree) holding(heading int) models.Holding {
	var h models.Holding

	if table, ok := t.itemTable(heading, itemC1Heading); ok {
		if name, ok := t.labelValue(table, issuerCell); ok {
			h.Set(models.FieldIssuerName, name)
		}
	}

	if table, ok := t.itemTable(heading, itemC2Heading); ok {
		for _, al := range amountLabels {
			if v, ok := t.labelValue(table, al.label); ok {
				h.Set(al.field, v)
			}
		}
	}
	return h
}

func (t *tree) itemTable(from int, item string) (int, bool) {
	pos, ok := t.findNext(from, itemTag, item)
	if !ok {
		return 0, false
	}
	return t.findNext(pos, tableTag, "")
}

// --- Tree navigation ---

// tree indexes the element nodes of a document in pre-order.
type tree struct {
	doc   *goquery.Document
	nodes []*html.Node
}

func newTree(doc *goquery.Document) *tree {
	// Find("*") yields matches in document order.
	return &tree{doc: doc, nodes: doc.Find("*").Nodes}
}

// findAll returns the positions of every tag element whose text contains marker.
func (t *tree) findAll(tag, marker string) []int {
	var out []int
	for i, n := range t.nodes {
		if n.Data == tag && containsText(n, marker) {
			out = append(out, i)
		}
	}
	return out
}

// findNext returns the first tag element after position from whose text
// contains marker. An empty marker matches any element of that tag.
func (t *tree) findNext(from int, tag, marker string) (int, bool) {
	for i := from + 1; i < len(t.nodes); i++ {
		n := t.nodes[i]
		if n.Data == tag && (marker == "" || containsText(n, marker)) {
			return i, true
		}
	}
	return 0, false
}

// labelValue finds the first cell inside the table at pos whose text contains
// label and returns the trimmed text of the next sibling cell.
func (t *tree) labelValue(pos int, label string) (string, bool) {
	cell := t.doc.FindNodes(t.nodes[pos]).
		Find(cellTag).
		FilterFunction(func(_ int, s *goquery.Selection) bool {
			return containsText(s.Get(0), label)
		}).
		First()
	if cell.Length() == 0 {
		return "", false
	}

	value := cell.NextAllFiltered(cellTag).First()
	if value.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(value.Text()), true
}

// containsText reports whether the element's text, with runs of whitespace
// collapsed, contains marker.
func containsText(n *html.Node, marker string) bool {
	var b strings.Builder
	collectText(n, &b)
	return strings.Contains(strings.Join(strings.Fields(b.String()), " "), marker)
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
