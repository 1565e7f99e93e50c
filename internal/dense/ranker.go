package dense

import (
	"context"
	"sort"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

// Ranker runs the dense-similarity baseline and writes a TREC run.
type Ranker struct {
	cfg      config.DenseConfig
	embedder Embedder
	log      *logger.Logger
}

// NewRanker creates a dense ranker around an explicitly owned embedder.
func NewRanker(cfg config.DenseConfig, embedder Embedder, log *logger.Logger) *Ranker {
	return &Ranker{
		cfg:      cfg,
		embedder: embedder,
		log:      log.WithStage("dense"),
	}
}

// Run encodes corpus and queries, ranks by cosine similarity, and writes
// the run file. Corpus embeddings are reused from the disk cache when the
// model/corpus fingerprint matches.
func (r *Ranker) Run(ctx context.Context, corpusPath, queriesPath, runPath string) error {
	docs, err := trec.ReadDocuments(corpusPath)
	if err != nil {
		return err
	}
	queries, err := trec.ReadQueries(queriesPath)
	if err != nil {
		return err
	}

	docVecs, err := r.corpusEmbeddings(ctx, docs)
	if err != nil {
		return err
	}

	r.log.Info("Encoding queries", "count", len(queries), "batch_size", r.cfg.BatchSize)
	queryTexts := make([]string, len(queries))
	for i, q := range queries {
		queryTexts[i] = q.Text
	}
	queryVecs, err := r.embedBatches(ctx, queryTexts)
	if err != nil {
		return err
	}

	entries := make([]trec.RunEntry, 0, len(queries)*r.cfg.TopK)
	for i, q := range queries {
		entries = append(entries, r.rank(q.ID, queryVecs[i], docs, docVecs)...)
	}

	if err := trec.WriteRun(runPath, entries); err != nil {
		return err
	}

	r.log.Info("Run written", "path", runPath, "queries", len(queries), "entries", len(entries))
	return nil
}

// corpusEmbeddings loads cached corpus vectors or encodes and caches them.
func (r *Ranker) corpusEmbeddings(ctx context.Context, docs []trec.Document) ([][]float32, error) {
	fingerprint := corpusFingerprint(r.embedder.Model(), docs)

	if r.cfg.CachePath != "" {
		if vecs, ok := loadCachedEmbeddings(r.cfg.CachePath, fingerprint); ok {
			r.log.Info("Corpus embeddings loaded from cache", "path", r.cfg.CachePath, "documents", len(vecs))
			return vecs, nil
		}
	}

	r.log.Info("Encoding corpus", "documents", len(docs), "model", r.embedder.Model())
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := r.embedBatches(ctx, texts)
	if err != nil {
		return nil, err
	}

	if r.cfg.CachePath != "" {
		if err := saveCachedEmbeddings(r.cfg.CachePath, fingerprint, docs, vecs); err != nil {
			// Cache failure costs time on the next run, not correctness.
			r.log.WithError(err).Warn("Failed to persist embedding cache")
		}
	}

	return vecs, nil
}

// embedBatches encodes texts in config-sized batches.
func (r *Ranker) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := r.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := r.embedder.EmbedTexts(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// rank orders the corpus for one query by cosine similarity, ties broken
// by ascending document ID.
func (r *Ranker) rank(queryID string, queryVec []float32, docs []trec.Document, docVecs [][]float32) []trec.RunEntry {
	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, len(docs))
	for i, doc := range docs {
		results[i] = scored{id: doc.ID, score: cosine(queryVec, docVecs[i])}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})

	topK := r.cfg.TopK
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
			Tag:     r.cfg.Tag,
		}
	}
	return entries
}
