package edgar

import "time"

// --- EDGAR Submissions (data.sec.gov/submissions) ---

// submissionsResponse is the response from the company submissions endpoint.
// Only the fields needed to locate filings are decoded.
type submissionsResponse struct {
	Name    string      `json:"name"`
	Filings filingsNode `json:"filings"`
}

type filingsNode struct {
	Recent recentFilings `json:"recent"`
}

// recentFilings holds one parallel array per column; row i of the index is
// the i-th element of every array.
type recentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// --- Helper for date parsing ---

func parseSECDate(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02",
		"2006-01-02T15:04:05.000Z",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
