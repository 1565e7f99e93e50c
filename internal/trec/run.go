package trec

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lexbench/lex-bench/internal/pkg/errors"
)

// ReadRun reads a TREC run file: six whitespace-separated columns per line
// (query_id, "Q0", doc_id, rank, score, tag). Entry order is preserved.
func ReadRun(path string) ([]RunEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(path)
		}
		return nil, errors.InternalError(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	var entries []RunEntry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			return nil, errors.DataError(
				fmt.Sprintf("%s line %d: expected 6 columns, got %d", path, lineNo, len(fields)), nil)
		}
		rank, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, errors.DataError(
				fmt.Sprintf("%s line %d: bad rank %q", path, lineNo, fields[3]), err)
		}
		score, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, errors.DataError(
				fmt.Sprintf("%s line %d: bad score %q", path, lineNo, fields[4]), err)
		}
		entries = append(entries, RunEntry{
			QueryID: fields[0],
			DocID:   fields[2],
			Rank:    rank,
			Score:   score,
			Tag:     fields[5],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.InternalError(fmt.Sprintf("reading %s", path), err)
	}
	return entries, nil
}

// WriteRun writes a TREC run file. Scores are printed with four decimals,
// matching what downstream tooling expects.
func WriteRun(path string, entries []RunEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("creating %s", path), err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		fmt.Fprintf(w, "%s Q0 %s %d %.4f %s\n", e.QueryID, e.DocID, e.Rank, e.Score, e.Tag)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.InternalError(fmt.Sprintf("flushing %s", path), err)
	}
	return f.Close()
}

// GroupRun groups run entries by query ID, preserving per-query order.
// The second return value lists query IDs in first-appearance order.
func GroupRun(entries []RunEntry) (map[string][]RunEntry, []string) {
	groups := make(map[string][]RunEntry)
	var order []string
	for _, e := range entries {
		if _, seen := groups[e.QueryID]; !seen {
			order = append(order, e.QueryID)
		}
		groups[e.QueryID] = append(groups[e.QueryID], e)
	}
	return groups, order
}

// RunQueryIDs returns the set of query IDs present in a run.
func RunQueryIDs(entries []RunEntry) map[string]bool {
	ids := make(map[string]bool)
	for _, e := range entries {
		ids[e.QueryID] = true
	}
	return ids
}
