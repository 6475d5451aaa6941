package event

import "strings"

// Metadata describes the uploaded paper. Zero values mean the service
// could not determine the field.
type Metadata struct {
	Title       string   `json:"title,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Year        int      `json:"year,omitempty"`
	Affiliation string   `json:"affiliation,omitempty"`
}

// Clone returns a copy that shares no memory with m.
func (m Metadata) Clone() Metadata {
	m.Authors = cloneStrings(m.Authors)
	return m
}

// ReferenceStatus is the verification outcome assigned by the service.
// Besides the well-known values below the service may assign a free-form
// reason chosen by its language model (e.g. "Potential Fabrication").
type ReferenceStatus string

const (
	StatusVerified    ReferenceStatus = "Verified"
	StatusNotFound    ReferenceStatus = "Not Found"
	StatusFormatError ReferenceStatus = "Format Error"
	StatusUnprocessed ReferenceStatus = "Unprocessed"
)

// Category buckets statuses the same way the service counts its summary.
type Category int

const (
	CategoryNotFound Category = iota
	CategoryVerified
	CategoryFormatError
)

func (c Category) String() string {
	switch c {
	case CategoryVerified:
		return "verified"
	case CategoryFormatError:
		return "format_error"
	default:
		return "not_found"
	}
}

// Category maps the status onto its summary bucket. Anything that is
// neither verified nor a format error counts as not found.
func (s ReferenceStatus) Category() Category {
	switch normalizeStatus(s) {
	case "verified":
		return CategoryVerified
	case "formaterror":
		return CategoryFormatError
	default:
		return CategoryNotFound
	}
}

// Verified reports whether the reference was verified.
func (s ReferenceStatus) Verified() bool {
	return s.Category() == CategoryVerified
}

func normalizeStatus(s ReferenceStatus) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(string(s)), " ", ""))
}

// Reference is one row of the results table.
type Reference struct {
	RawText           string          `json:"raw_text"`
	Status            ReferenceStatus `json:"status"`
	Authors           []string        `json:"authors,omitempty"`
	Year              int             `json:"year,omitempty"`
	Title             string          `json:"title,omitempty"`
	Source            string          `json:"source,omitempty"`
	VerifiedDOI       string          `json:"verified_doi,omitempty"`
	VerificationScore float64         `json:"verification_score"`
	FormatSuggestion  string          `json:"format_suggestion,omitempty"`
	SourceURL         string          `json:"source_url,omitempty"`
}

// DOIURL returns the resolver link for the verified DOI, or "" when the
// service did not report one. "N/A" is what the service sends for lookups
// that matched without a DOI.
func (r Reference) DOIURL() string {
	if r.VerifiedDOI == "" || r.VerifiedDOI == "N/A" {
		return ""
	}
	return "https://doi.org/" + r.VerifiedDOI
}

// Clone returns a copy that shares no memory with r.
func (r Reference) Clone() Reference {
	r.Authors = cloneStrings(r.Authors)
	return r
}

// Summary holds the running counters. The service guarantees
// VerifiedCount+NotFoundCount+FormatErrorCount <= TotalReferences.
type Summary struct {
	TotalReferences  int `json:"total_references"`
	VerifiedCount    int `json:"verified_count"`
	NotFoundCount    int `json:"not_found_count"`
	FormatErrorCount int `json:"format_error_count"`
}

// Unverified is the count shown on the "unverified" card.
func (s Summary) Unverified() int {
	return s.NotFoundCount + s.FormatErrorCount
}

// Processed is the number of references with a verdict so far.
func (s Summary) Processed() int {
	return s.VerifiedCount + s.NotFoundCount + s.FormatErrorCount
}

// Pending is the number of references still awaiting a verdict.
func (s Summary) Pending() int {
	if p := s.TotalReferences - s.Processed(); p > 0 {
		return p
	}
	return 0
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
