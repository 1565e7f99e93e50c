package prepare

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lexbench/lex-bench/internal/pkg/errors"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

// FixResult summarizes a qrels canonicalization run.
type FixResult struct {
	Written int
	Merged  int
	Skipped int
}

// FixQrels rewrites the loose 3-column judgments into canonical TREC qrels.
// Rows whose grade does not parse as an integer are skipped with a warning.
// Duplicate (query_id, doc_id) pairs are merged by keeping the maximum
// grade; a judged-relevant pair stays relevant no matter what a noisier
// duplicate row says. Output preserves first-appearance order.
func FixQrels(rawPath, outPath string, log *logger.Logger) (*FixResult, error) {
	log = log.WithStage("fix-qrels")

	f, err := os.Open(rawPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(rawPath)
		}
		return nil, errors.InternalError(fmt.Sprintf("opening %s", rawPath), err)
	}
	defer f.Close()

	type pairKey struct{ queryID, docID string }
	index := make(map[pairKey]int) // pair -> position in qrels slice
	var qrels []trec.Qrel
	merged, skipped := 0, 0

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 && strings.HasPrefix(line, "query-id") {
			continue // header from the preparer
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			skipped++
			log.Warn("Skipping malformed judgment", "line", lineNo, "columns", len(fields))
			continue
		}

		grade, err := strconv.Atoi(fields[2])
		if err != nil {
			skipped++
			log.Warn("Skipping judgment with non-integer grade", "line", lineNo, "grade", fields[2])
			continue
		}

		key := pairKey{queryID: fields[0], docID: fields[1]}
		if pos, seen := index[key]; seen {
			merged++
			if grade > qrels[pos].Relevance {
				qrels[pos].Relevance = grade
			}
			continue
		}

		index[key] = len(qrels)
		qrels = append(qrels, trec.Qrel{
			QueryID:   fields[0],
			Iteration: "0",
			DocID:     fields[1],
			Relevance: grade,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.InternalError(fmt.Sprintf("reading %s", rawPath), err)
	}

	if len(qrels) == 0 {
		return nil, errors.DataError("no valid judgments found", nil)
	}

	if err := trec.WriteQrels(outPath, qrels); err != nil {
		return nil, err
	}

	log.Info("Qrels canonicalized", "written", len(qrels), "merged", merged, "skipped", skipped)

	return &FixResult{Written: len(qrels), Merged: merged, Skipped: skipped}, nil
}
