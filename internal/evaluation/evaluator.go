package evaluation

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/pkg/errors"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

// Evaluator scores run files against relevance judgments.
type Evaluator struct {
	cutoff    int
	threshold int
	log       *logger.Logger
}

// NewEvaluator creates an evaluator with the given rank cutoff for
// nDCG and recall. Grades >= 1 count as relevant.
func NewEvaluator(cutoff int, log *logger.Logger) *Evaluator {
	return &Evaluator{
		cutoff:    cutoff,
		threshold: 1,
		log:       log.WithStage("evaluate"),
	}
}

// EvaluateAll loads qrels once and scores every configured system in
// order. A missing run file marks that system's row and the rest still
// evaluate; missing qrels are fatal.
func (e *Evaluator) EvaluateAll(qrelsPath string, systems []config.SystemRun) ([]SystemReport, error) {
	qrels, err := trec.ReadQrels(qrelsPath)
	if err != nil {
		return nil, err
	}
	judgments := trec.QrelsByQuery(qrels)
	e.log.Info("Qrels loaded", "judgments", len(qrels), "queries", len(judgments))

	reports := make([]SystemReport, 0, len(systems))
	for _, sys := range systems {
		report := e.evaluateSystem(sys, judgments)
		reports = append(reports, report)

		log := e.log.WithSystem(sys.Name)
		if report.Status == StatusOK {
			log.Info("System scored",
				"queries", report.Queries,
				"map", fmt.Sprintf("%.4f", report.MAP),
				"ndcg", fmt.Sprintf("%.4f", report.NDCG),
				"recall", fmt.Sprintf("%.4f", report.Recall),
			)
		} else {
			log.Warn("System not scored", "status", report.Status)
		}
	}

	return reports, nil
}

func (e *Evaluator) evaluateSystem(sys config.SystemRun, judgments map[string]map[string]int) SystemReport {
	run, err := trec.ReadRun(sys.Run)
	if err != nil {
		if errors.IsNotFound(err) {
			return SystemReport{System: sys.Name, Status: "missing run file"}
		}
		return SystemReport{System: sys.Name, Status: err.Error()}
	}

	results := e.EvaluateRun(run, judgments)
	if len(results) == 0 {
		return SystemReport{System: sys.Name, Status: "no judged queries in run"}
	}

	report := SystemReport{System: sys.Name, Status: StatusOK, Queries: len(results)}
	for _, r := range results {
		report.MAP += r.AP
		report.NDCG += r.NDCG
		report.Recall += r.Recall
	}
	n := float64(len(results))
	report.MAP /= n
	report.NDCG /= n
	report.Recall /= n
	return report
}

// EvaluateRun scores each judged query present in the run. Run queries
// with no judgments at all are excluded, as are queries whose judgments
// contain no relevant document — the exclusion covers all three metrics,
// not just MAP: such queries have zero ideal gain and a zero recall
// denominator, so ir_measures-style scoring has nothing to average for
// them either.
func (e *Evaluator) EvaluateRun(run []trec.RunEntry, judgments map[string]map[string]int) []QueryResult {
	groups, order := trec.GroupRun(run)

	var results []QueryResult
	for _, qid := range order {
		qJudgments, ok := judgments[qid]
		if !ok {
			continue
		}

		totalRelevant := 0
		allGrades := make([]int, 0, len(qJudgments))
		for _, grade := range qJudgments {
			allGrades = append(allGrades, grade)
			if grade >= e.threshold {
				totalRelevant++
			}
		}
		if totalRelevant == 0 {
			continue
		}

		ranked := make([]int, len(groups[qid]))
		for i, entry := range groups[qid] {
			ranked[i] = qJudgments[entry.DocID]
		}

		results = append(results, QueryResult{
			QueryID: qid,
			AP:      AveragePrecision(ranked, totalRelevant, e.threshold),
			NDCG:    NDCG(ranked, allGrades, e.cutoff),
			Recall:  Recall(ranked, totalRelevant, e.cutoff, e.threshold),
		})
	}
	return results
}

// FormatTable renders the report rows as an aligned text table.
func (e *Evaluator) FormatTable(reports []SystemReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-22s | %-7s | %-8s | %-8s | %-9s\n",
		"System", "Queries", "MAP", fmt.Sprintf("nDCG@%d", e.cutoff), fmt.Sprintf("Recall@%d", e.cutoff))
	b.WriteString(strings.Repeat("-", 66))
	b.WriteByte('\n')

	for _, r := range reports {
		if r.Status != StatusOK {
			fmt.Fprintf(&b, "%-22s | %s\n", r.System, r.Status)
			continue
		}
		fmt.Fprintf(&b, "%-22s | %-7d | %.4f   | %.4f   | %.4f\n",
			r.System, r.Queries, r.MAP, r.NDCG, r.Recall)
	}
	return b.String()
}

// WriteReport writes the metrics rows as a TSV file for the plot stage.
func (e *Evaluator) WriteReport(path string, reports []SystemReport) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("creating %s", path), err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "system\tqueries\tmap\tndcg@%d\trecall@%d\n", e.cutoff, e.cutoff)
	for _, r := range reports {
		if r.Status != StatusOK {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\n", r.System, r.Queries, r.MAP, r.NDCG, r.Recall)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.InternalError(fmt.Sprintf("flushing %s", path), err)
	}
	return f.Close()
}
