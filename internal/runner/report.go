package runner

// Report is the output file written for one reporting date.
type Report struct {
	ReportingDate   string
	Path            string
	AccessionNumber string
}

// ReportSet maps reporting dates to the file written for them during a run.
// A date keeps its first-seen position when a later filing replaces it.
type ReportSet struct {
	order  []string
	byDate map[string]Report
}

// NewReportSet creates an empty set.
func NewReportSet() *ReportSet {
	return &ReportSet{byDate: make(map[string]Report)}
}

// Put records the file for date. If another filing already wrote that date,
// its accession number is returned with replaced=true.
func (s *ReportSet) Put(date, path, accession string) (prev string, replaced bool) {
	if old, ok := s.byDate[date]; ok {
		prev, replaced = old.AccessionNumber, true
	} else {
		s.order = append(s.order, date)
	}
	s.byDate[date] = Report{ReportingDate: date, Path: path, AccessionNumber: accession}
	return prev, replaced
}

// Get returns the report for date.
func (s *ReportSet) Get(date string) (Report, bool) {
	r, ok := s.byDate[date]
	return r, ok
}

// Dates returns the reporting dates in first-seen order.
func (s *ReportSet) Dates() []string {
	return append([]string(nil), s.order...)
}

// All returns the reports in first-seen order.
func (s *ReportSet) All() []Report {
	out := make([]Report, 0, len(s.order))
	for _, d := range s.order {
		out = append(out, s.byDate[d])
	}
	return out
}

// Len returns the number of distinct reporting dates.
func (s *ReportSet) Len() int { return len(s.order) }
