package trec

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lexbench/lex-bench/internal/pkg/errors"
)

// ReadQrels reads a canonical TREC qrels file: four whitespace-separated
// columns per line (query_id, iteration, doc_id, relevance).
func ReadQrels(path string) ([]Qrel, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(path)
		}
		return nil, errors.InternalError(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	var qrels []Qrel
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, errors.DataError(
				fmt.Sprintf("%s line %d: expected 4 columns, got %d", path, lineNo, len(fields)), nil)
		}
		rel, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, errors.DataError(
				fmt.Sprintf("%s line %d: bad relevance grade %q", path, lineNo, fields[3]), err)
		}
		qrels = append(qrels, Qrel{
			QueryID:   fields[0],
			Iteration: fields[1],
			DocID:     fields[2],
			Relevance: rel,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.InternalError(fmt.Sprintf("reading %s", path), err)
	}
	return qrels, nil
}

// WriteQrels writes qrels in canonical TREC format, space separated.
func WriteQrels(path string, qrels []Qrel) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("creating %s", path), err)
	}

	w := bufio.NewWriter(f)
	for _, q := range qrels {
		iter := q.Iteration
		if iter == "" {
			iter = "0"
		}
		fmt.Fprintf(w, "%s %s %s %d\n", q.QueryID, iter, q.DocID, q.Relevance)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.InternalError(fmt.Sprintf("flushing %s", path), err)
	}
	return f.Close()
}

// QrelsByQuery indexes qrels as queryID -> docID -> relevance grade.
func QrelsByQuery(qrels []Qrel) map[string]map[string]int {
	byQuery := make(map[string]map[string]int)
	for _, q := range qrels {
		if byQuery[q.QueryID] == nil {
			byQuery[q.QueryID] = make(map[string]int)
		}
		byQuery[q.QueryID][q.DocID] = q.Relevance
	}
	return byQuery
}
