package rerank

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/lexbench/lex-bench/internal/pkg/errors"
)

// Ranking is a validated ordering over candidate positions, 1-based.
type Ranking struct {
	Indices []int
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// ParseRanking extracts an ordered candidate ranking from the model's
// free-text reply. The reply is untrusted: commentary, partial lists,
// repeats, and out-of-range indices are all tolerated. Indices must be in
// [1, numCandidates]; duplicates keep their first position. A reply that
// yields no valid index at all is a parse failure, never an empty ranking.
func ParseRanking(response string, numCandidates int) (*Ranking, error) {
	matches := indexPattern.FindAllStringSubmatch(response, -1)

	seen := make(map[int]bool, numCandidates)
	indices := make([]int, 0, numCandidates)
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue // digits too long for int, ignore
		}
		if idx < 1 || idx > numCandidates {
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}

	if len(indices) == 0 {
		return nil, errors.ParseError(
			fmt.Sprintf("no valid candidate indices in response (%d chars)", len(response)))
	}

	return &Ranking{Indices: indices}, nil
}

// Complete returns the ranking extended with every unmentioned candidate
// position in original order, so the result always covers all candidates.
func (r *Ranking) Complete(numCandidates int) []int {
	seen := make(map[int]bool, len(r.Indices))
	full := make([]int, 0, numCandidates)
	for _, idx := range r.Indices {
		seen[idx] = true
		full = append(full, idx)
	}
	for i := 1; i <= numCandidates; i++ {
		if !seen[i] {
			full = append(full, i)
		}
	}
	return full
}
