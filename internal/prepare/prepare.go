// Package prepare turns the raw tabular legal-case dataset into the
// corpus, query, and relevance-judgment artifacts the rankers consume.
package prepare

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/pkg/errors"
	"github.com/lexbench/lex-bench/internal/pkg/hash"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

// Result summarizes a preparation run.
type Result struct {
	Documents int
	Queries   int
	Judgments int
	Skipped   int
}

// Preparer converts the raw CSV into corpus/queries/raw-qrels files.
type Preparer struct {
	cfg config.DataConfig
	log *logger.Logger
}

// NewPreparer creates a new preparer.
func NewPreparer(cfg config.DataConfig, log *logger.Logger) *Preparer {
	return &Preparer{
		cfg: cfg,
		log: log.WithStage("prepare"),
	}
}

// rawJudgment is the loose 3-column judgment emitted here and canonicalized
// by FixQrels.
type rawJudgment struct {
	QueryID string
	DocID   string
	Grade   string
}

// Run reads the raw dataset and writes corpus.jsonl, queries.jsonl and
// qrels_raw.tsv into the processed directory. Malformed rows are skipped
// with a warning; each row with both cells present yields exactly one
// query and one judgment, and each unique document text yields exactly
// one corpus record with a first-seen-order ID.
func (p *Preparer) Run() (*Result, error) {
	f, err := os.Open(p.cfg.RawPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(p.cfg.RawPath)
		}
		return nil, errors.InternalError("opening raw dataset", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // row width validated per record below

	header, err := r.Read()
	if err != nil {
		return nil, errors.DataError("reading CSV header", err)
	}

	queryCol, docCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case p.cfg.QueryColumn:
			queryCol = i
		case p.cfg.DocColumn:
			docCol = i
		}
	}
	if queryCol < 0 || docCol < 0 {
		return nil, errors.ValidationError(fmt.Sprintf(
			"columns %q and %q not found in header %v; set data.query_column / data.doc_column",
			p.cfg.QueryColumn, p.cfg.DocColumn, header))
	}

	// Repeated answers collapse to one document; keyed by content digest so
	// the dedupe map never holds full case texts.
	docIDs := make(map[string]string)
	var (
		corpus    []trec.Document
		queries   []trec.Query
		judgments []rawJudgment
		skipped   int
	)

	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			p.log.Warn("Skipping unreadable row", "row", row, "error", err)
			row++
			continue
		}

		if queryCol >= len(record) || docCol >= len(record) {
			skipped++
			p.log.Warn("Skipping short row", "row", row, "columns", len(record))
			row++
			continue
		}

		queryText := strings.TrimSpace(record[queryCol])
		docText := strings.TrimSpace(record[docCol])
		if queryText == "" || docText == "" {
			skipped++
			p.log.Warn("Skipping row with empty cell", "row", row)
			row++
			continue
		}

		docKey := hash.SHA256String(docText)
		docID, seen := docIDs[docKey]
		if !seen {
			docID = fmt.Sprintf("doc_%d", len(corpus))
			docIDs[docKey] = docID
			corpus = append(corpus, trec.Document{ID: docID, Text: docText})
		}

		queryID := fmt.Sprintf("q_%d", row)
		queries = append(queries, trec.Query{ID: queryID, Text: queryText})
		judgments = append(judgments, rawJudgment{QueryID: queryID, DocID: docID, Grade: "1"})
		row++
	}

	if len(queries) == 0 {
		return nil, errors.DataError("raw dataset produced no usable rows", nil)
	}

	if err := os.MkdirAll(p.cfg.ProcessedDir, 0o755); err != nil {
		return nil, errors.InternalError("creating processed dir", err)
	}

	if err := trec.WriteDocuments(p.CorpusPath(), corpus); err != nil {
		return nil, err
	}
	if err := trec.WriteQueries(p.QueriesPath(), queries); err != nil {
		return nil, err
	}
	if err := writeRawQrels(p.RawQrelsPath(), judgments); err != nil {
		return nil, err
	}

	p.log.Info("Preparation complete",
		"documents", len(corpus),
		"queries", len(queries),
		"judgments", len(judgments),
		"skipped", skipped,
	)

	return &Result{
		Documents: len(corpus),
		Queries:   len(queries),
		Judgments: len(judgments),
		Skipped:   skipped,
	}, nil
}

// CorpusPath returns the corpus artifact path.
func (p *Preparer) CorpusPath() string {
	return filepath.Join(p.cfg.ProcessedDir, "corpus.jsonl")
}

// QueriesPath returns the queries artifact path.
func (p *Preparer) QueriesPath() string {
	return filepath.Join(p.cfg.ProcessedDir, "queries.jsonl")
}

// RawQrelsPath returns the loose pre-canonical qrels path.
func (p *Preparer) RawQrelsPath() string {
	return filepath.Join(p.cfg.ProcessedDir, "qrels_raw.tsv")
}

// QrelsPath returns the canonical TREC qrels path.
func (p *Preparer) QrelsPath() string {
	return filepath.Join(p.cfg.ProcessedDir, "qrels.tsv")
}

func writeRawQrels(path string, judgments []rawJudgment) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("creating %s", path), err)
	}

	var b strings.Builder
	b.WriteString("query-id\tcorpus-id\tscore\n")
	for _, j := range judgments {
		b.WriteString(j.QueryID)
		b.WriteByte('\t')
		b.WriteString(j.DocID)
		b.WriteByte('\t')
		b.WriteString(j.Grade)
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return errors.InternalError(fmt.Sprintf("writing %s", path), err)
	}
	return f.Close()
}
