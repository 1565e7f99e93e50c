// Package trec defines the typed records exchanged between pipeline stages
// and their flat-file encodings: JSONL for corpus and queries, TREC
// tab-separated qrels, and the six-column TREC run format.
package trec

// Document is one corpus record. Immutable once written.
type Document struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

// Query is one query record. Immutable once written.
type Query struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

// Qrel is a relevance judgment: query, iteration constant, document, grade.
// Uniqueness is on (QueryID, DocID).
type Qrel struct {
	QueryID   string
	Iteration string
	DocID     string
	Relevance int
}

// RunEntry is one line of a ranked run. Rank is 1-based and derived from
// the descending-score ordering within a query.
type RunEntry struct {
	QueryID string
	DocID   string
	Rank    int
	Score   float64
	Tag     string
}
