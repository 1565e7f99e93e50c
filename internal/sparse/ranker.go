package sparse

import (
	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

// Ranker runs the BM25 baseline over a query set and writes a TREC run.
type Ranker struct {
	cfg config.BM25Config
	log *logger.Logger
}

// NewRanker creates a new BM25 baseline ranker.
func NewRanker(cfg config.BM25Config, log *logger.Logger) *Ranker {
	return &Ranker{
		cfg: cfg,
		log: log.WithStage("bm25"),
	}
}

// Run indexes the corpus, ranks every query, and writes the run file.
func (r *Ranker) Run(corpusPath, queriesPath, runPath string) error {
	docs, err := trec.ReadDocuments(corpusPath)
	if err != nil {
		return err
	}
	queries, err := trec.ReadQueries(queriesPath)
	if err != nil {
		return err
	}

	r.log.Info("Indexing corpus", "documents", len(docs), "k1", r.cfg.K1, "b", r.cfg.B)
	idx := NewIndex(docs, r.cfg.K1, r.cfg.B)

	entries := make([]trec.RunEntry, 0, len(queries)*r.cfg.TopK)
	for i, q := range queries {
		if i > 0 && i%100 == 0 {
			r.log.Debug("Ranking progress", "done", i, "total", len(queries))
		}
		entries = append(entries, idx.Search(q.ID, q.Text, r.cfg.TopK, r.cfg.Tag)...)
	}

	if err := trec.WriteRun(runPath, entries); err != nil {
		return err
	}

	r.log.Info("Run written", "path", runPath, "queries", len(queries), "entries", len(entries))
	return nil
}
