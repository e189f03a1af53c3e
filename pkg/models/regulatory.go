package models

import "time"

// --- SEC Filings ---

// FormNPORTP is the EDGAR form type for monthly portfolio holdings reports.
const FormNPORTP = "NPORT-P"

// FilingReference identifies one filing listed in an entity's submissions index.
// Identity is the accession number.
type FilingReference struct {
	AccessionNumber string    `json:"accession_number"` // e.g. "0001234567-24-000001"
	FilingDate      time.Time `json:"filing_date"`
	FilingDateRaw   string    `json:"filing_date_raw,omitempty"`
	FormType        string    `json:"form_type"` // "NPORT-P", "N-CSR", ...
	PrimaryDocument string    `json:"primary_document"`
}

// FilingIndex is the ordered list of filings disclosed by one entity.
type FilingIndex struct {
	CIK        string            `json:"cik"`
	EntityName string            `json:"entity_name,omitempty"`
	Filings    []FilingReference `json:"filings"`
}

// FeedEntry is one filing announced on the EDGAR company Atom feed.
type FeedEntry struct {
	AccessionNumber string    `json:"accession_number,omitempty"`
	FormType        string    `json:"form_type"`
	Title           string    `json:"title"`
	Link            string    `json:"link"`
	Updated         time.Time `json:"updated,omitempty"`
}

// --- NPORT-P holdings ---

// HoldingField names a column extracted from a Part C holding block.
type HoldingField string

const (
	FieldIssuerName   HoldingField = "Name of Issuer"
	FieldShares       HoldingField = "Number of Shares"
	FieldValueUSD     HoldingField = "Value (USD)"
	FieldPctNetAssets HoldingField = "Percentage of Net Assets"
)

// HoldingFields is the canonical column order.
var HoldingFields = []HoldingField{
	FieldIssuerName,
	FieldShares,
	FieldValueUSD,
	FieldPctNetAssets,
}

// Holding is the set of fields found for one portfolio position.
// Fields absent from the source document are absent here; values are kept
// exactly as rendered (trimmed, never reparsed).
type Holding struct {
	fields []HoldingField
	values map[HoldingField]string
}

// Set records a field value. Setting a field twice keeps its first position.
func (h *Holding) Set(field HoldingField, value string) {
	if h.values == nil {
		h.values = make(map[HoldingField]string)
	}
	if _, ok := h.values[field]; !ok {
		h.fields = append(h.fields, field)
	}
	h.values[field] = value
}

// Get returns the value of a field and whether it was found.
func (h Holding) Get(field HoldingField) (string, bool) {
	v, ok := h.values[field]
	return v, ok
}

// Fields returns the fields present, in the order they were set.
func (h Holding) Fields() []HoldingField {
	out := make([]HoldingField, len(h.fields))
	copy(out, h.fields)
	return out
}

// Len returns the number of fields present.
func (h Holding) Len() int { return len(h.fields) }

// ExtractedFiling is the result of extracting one NPORT-P document.
// ReportingDate is never empty for a successful extraction.
type ExtractedFiling struct {
	ReportingDate string    `json:"reporting_date"` // as rendered, e.g. "12-31-2023"
	Holdings      []Holding `json:"-"`
}

// Columns returns the union of fields present across all holdings,
// in first-seen order.
func (f *ExtractedFiling) Columns() []HoldingField {
	seen := make(map[HoldingField]bool)
	var cols []HoldingField
	for _, h := range f.Holdings {
		for _, field := range h.fields {
			if !seen[field] {
				seen[field] = true
				cols = append(cols, field)
			}
		}
	}
	return cols
}

// Rows returns one row per holding aligned to Columns. Missing fields are empty.
func (f *ExtractedFiling) Rows() [][]string {
	cols := f.Columns()
	rows := make([][]string, 0, len(f.Holdings))
	for _, h := range f.Holdings {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = h.values[c]
		}
		rows = append(rows, row)
	}
	return rows
}
