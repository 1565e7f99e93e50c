package sparse

import (
	"math"
	"sort"

	"github.com/lexbench/lex-bench/internal/trec"
)

// Index is a BM25 term-frequency index over a fixed corpus.
type Index struct {
	k1    float64
	b     float64
	docs  []indexedDoc
	df    map[string]int // term -> number of docs containing it
	avgdl float64
}

type indexedDoc struct {
	id     string
	length int
	tf     map[string]int
}

// NewIndex builds a BM25 index from the corpus. k1 scales term frequency
// saturation, b scales document-length normalization.
func NewIndex(docs []trec.Document, k1, b float64) *Index {
	idx := &Index{
		k1:   k1,
		b:    b,
		docs: make([]indexedDoc, 0, len(docs)),
		df:   make(map[string]int),
	}

	totalLen := 0
	for _, doc := range docs {
		tokens := Tokenize(doc.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			idx.df[term]++
		}
		idx.docs = append(idx.docs, indexedDoc{id: doc.ID, length: len(tokens), tf: tf})
		totalLen += len(tokens)
	}

	if len(idx.docs) > 0 {
		idx.avgdl = float64(totalLen) / float64(len(idx.docs))
	}

	return idx
}

// Size returns the number of indexed documents.
func (idx *Index) Size() int {
	return len(idx.docs)
}

// idf uses the smoothed formulation ln((N-df+0.5)/(df+0.5) + 1), which is
// non-negative even for terms present in most documents.
func (idx *Index) idf(term string) float64 {
	df := idx.df[term]
	n := len(idx.docs)
	return math.Log((float64(n-df)+0.5)/(float64(df)+0.5) + 1)
}

// score computes the BM25 score of one document for the tokenized query.
func (idx *Index) score(doc indexedDoc, queryTerms []string) float64 {
	var s float64
	norm := idx.k1 * (1 - idx.b + idx.b*(float64(doc.length)/idx.avgdl))
	for _, term := range queryTerms {
		tf := float64(doc.tf[term])
		if tf == 0 {
			continue
		}
		s += idx.idf(term) * tf * (idx.k1 + 1) / (tf + norm)
	}
	return s
}

// Search scores every indexed document against the query and returns the
// top-k as run entries tagged with tag. Ties break on ascending document
// ID so runs are deterministic.
func (idx *Index) Search(queryID, queryText string, topK int, tag string) []trec.RunEntry {
	if len(idx.docs) == 0 || topK < 1 {
		return nil
	}

	queryTerms := Tokenize(queryText)

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, len(idx.docs))
	for i, doc := range idx.docs {
		results[i] = scored{id: doc.id, score: idx.score(doc, queryTerms)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})

	if topK > len(results) {
		topK = len(results)
	}

	entries := make([]trec.RunEntry, topK)
	for i := 0; i < topK; i++ {
		entries[i] = trec.RunEntry{
			QueryID: queryID,
			DocID:   results[i].id,
			Rank:    i + 1,
			Score:   results[i].score,
			Tag:     tag,
		}
	}
	return entries
}
