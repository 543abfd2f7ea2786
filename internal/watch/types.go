// Package watch defines core types shared across subsystems.
package watch

import "time"

// Category is the verdict assigned to a candidate article by classification.
type Category string

// Classification categories returned by the classifier.
const (
	CategoryOriginalReport Category = "original-report"
	CategoryRepost         Category = "repost"
	CategoryNotRelevant    Category = "not-relevant"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryOriginalReport, CategoryRepost, CategoryNotRelevant:
		return true
	}
	return false
}

// AlertMessage is a raw inbound alert as supplied by the message source.
// Messages are owned by the external store and treated as read-only.
type AlertMessage struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	RawBody    string    `json:"raw_body"`
}

// CandidateArticle is the per-message extraction result. It exists only for
// the duration of one pipeline pass.
type CandidateArticle struct {
	SourceMessageID string
	Title           string
	Description     string
	RawURL          string
	UnwrappedURL    string
	NormalizedURL   string
}

// ClassificationVerdict is the validated response of the classification call.
// ReferencedURL is set iff Category is CategoryRepost.
type ClassificationVerdict struct {
	Category      Category
	ReferencedURL string
	Confidence    float64
}

// CatalogEntry is one unique captured report, the system's output unit.
// The pipeline creates entries; only the review surface flips IsRead.
type CatalogEntry struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	SourceURL        string    `json:"source_url"`
	Severity         string    `json:"severity,omitempty"`
	IsDomainSpecific bool      `json:"is_domain_specific"`
	BlobURI          string    `json:"blob_uri,omitempty"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	IsRead           bool      `json:"is_read"`
}

// ReportFields carries the extraction output used to build a CatalogEntry.
type ReportFields struct {
	Title            string
	Summary          string
	Severity         string
	IsDomainSpecific bool
}

// Stage names a pipeline state for failure reporting.
type Stage string

// Pipeline stages in processing order.
const (
	StageIngest        Stage = "ingest"
	StageExtract       Stage = "extract"
	StageNormalize     Stage = "normalize"
	StageFetch         Stage = "fetch"
	StageClassify      Stage = "classify"
	StageReportGate    Stage = "report-gate"
	StageReportFetch   Stage = "report-fetch"
	StageReportExtract Stage = "report-extract"
	StageCommit        Stage = "commit"
)

// ItemFailure records one failed item inside a run without aborting the batch.
type ItemFailure struct {
	MessageID string    `json:"message_id"`
	URL       string    `json:"url,omitempty"`
	Stage     Stage     `json:"stage"`
	Kind      ErrorKind `json:"kind"`
	Error     string    `json:"error"`
	Retryable bool      `json:"retryable"`
}

// RunSummary is the operator-visible outcome of one orchestrator invocation.
type RunSummary struct {
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	Processed          int           `json:"processed"`
	Skipped            int           `json:"skipped"`
	NotRelevant        int           `json:"not_relevant"`
	DuplicatesDropped  int           `json:"duplicates_dropped"`
	Committed          int           `json:"committed"`
	Failed             int           `json:"failed"`
	Retries            int           `json:"retries"`
	Failures           []ItemFailure `json:"failures,omitempty"`
}
