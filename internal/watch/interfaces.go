package watch

import (
	"context"
	"io"
	"time"
)

// MessageFilter narrows which alert messages a source returns.
type MessageFilter struct {
	Since time.Time
	Limit int
}

// MessageSource supplies raw alert messages from the external record store.
type MessageSource interface {
	ListMessages(ctx context.Context, filter MessageFilter) ([]AlertMessage, error)
}

// FetchRequest captures everything needed to fetch one URL.
type FetchRequest struct {
	URL     string
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Content    string
	Duration   time.Duration
}

// Fetcher retrieves the text content behind a URL. Failures are returned as
// *FetchError so callers can branch on Kind.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Classifier decides whether article content is an original report, a repost
// of another source, or not relevant at all.
type Classifier interface {
	Classify(ctx context.Context, article CandidateArticle, content string) (ClassificationVerdict, error)
}

// ReportExtractor turns the full text of a resolved, novel report into
// structured catalog fields.
type ReportExtractor interface {
	ExtractReport(ctx context.Context, content string) (ReportFields, error)
}

// Ledger is an append-only string set with at-most-once semantics.
// Add returns true iff the key was newly inserted; the check and the mark
// are a single atomic step under concurrent writers.
type Ledger interface {
	Add(ctx context.Context, key string) (bool, error)
	Contains(ctx context.Context, key string) (bool, error)
}

// CatalogStore is the durable collection of unique report entries.
// The pipeline only appends; the review surface reads and flips IsRead.
type CatalogStore interface {
	Append(ctx context.Context, entry CatalogEntry) error
	List(ctx context.Context) ([]CatalogEntry, error)
	SetRead(ctx context.Context, id string, read bool) error
}

// BlobStore archives raw fetched report bodies.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher digests content for blob addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints identifiers for catalog entries.
type IDGenerator interface {
	NewID() (string, error)
}
