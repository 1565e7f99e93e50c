package evaluation

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lexbench/lex-bench/internal/pkg/errors"
)

// ReportRow is one scored system parsed back from a metrics TSV.
type ReportRow struct {
	System  string
	Queries int
	MAP     float64
	NDCG    float64
	Recall  float64
}

// ReadReport parses a metrics TSV written by WriteReport. Rows are
// returned in file order.
func ReadReport(path string) ([]ReportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(fmt.Sprintf("metrics report %s", path))
		}
		return nil, errors.DataError(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	var rows []ReportRow
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || lineNo == 1 {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			return nil, errors.ParseError(fmt.Sprintf("%s:%d: expected 5 columns, got %d", path, lineNo, len(fields)))
		}

		queries, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.ParseError(fmt.Sprintf("%s:%d: bad query count %q", path, lineNo, fields[1]))
		}
		row := ReportRow{System: fields[0], Queries: queries}
		for i, dst := range []*float64{&row.MAP, &row.NDCG, &row.Recall} {
			v, err := strconv.ParseFloat(fields[i+2], 64)
			if err != nil {
				return nil, errors.ParseError(fmt.Sprintf("%s:%d: bad metric %q", path, lineNo, fields[i+2]))
			}
			*dst = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.DataError(fmt.Sprintf("reading %s", path), err)
	}

	return rows, nil
}
