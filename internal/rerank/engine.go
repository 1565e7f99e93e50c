package rerank

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lexbench/lex-bench/internal/config"
	apperrors "github.com/lexbench/lex-bench/internal/pkg/errors"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

// Report describes how each query fared so degraded results stay
// interpretable: Fallbacks lists queries that kept their BM25 ordering.
type Report struct {
	Queries   int
	Reranked  int
	Fallbacks []string
	Skipped   int // not attempted before cancellation
}

// Engine reranks per-query candidate lists from a BM25 run with an LLM.
type Engine struct {
	cfg     config.RerankConfig
	gen     Generator
	limiter *rate.Limiter
	fewShot bool
	tag     string
	log     *logger.Logger
}

// NewEngine creates a rerank engine. All workers share one rate limiter
// sized from the configured requests-per-minute cap.
func NewEngine(cfg config.RerankConfig, gen Generator, fewShot bool, log *logger.Logger) *Engine {
	tag := cfg.ZeroShotTag
	stage := "rerank-zeroshot"
	if fewShot {
		tag = cfg.FewShotTag
		stage = "rerank-fewshot"
	}

	return &Engine{
		cfg:     cfg,
		gen:     gen,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1),
		fewShot: fewShot,
		tag:     tag,
		log:     log.WithStage(stage),
	}
}

// queryTask is one query's candidate list in BM25 order.
type queryTask struct {
	queryID    string
	queryText  string
	candidates []trec.Document
}

type taskStatus int

const (
	statusReranked taskStatus = iota
	statusFallback
	statusSkipped
)

type taskResult struct {
	entries []trec.RunEntry
	status  taskStatus
}

// Run loads the corpus, queries, and BM25 candidates, reranks each query's
// top-N with the LLM, and writes a TREC run. A query whose call or parse
// ultimately fails falls back to its BM25 ordering; cancellation stops
// dispatching new queries but still writes every completed group.
func (e *Engine) Run(ctx context.Context, corpusPath, queriesPath, candidateRunPath, outPath string) (*Report, error) {
	docs, err := trec.ReadDocuments(corpusPath)
	if err != nil {
		return nil, err
	}
	queries, err := trec.ReadQueries(queriesPath)
	if err != nil {
		return nil, err
	}
	candidateRun, err := trec.ReadRun(candidateRunPath)
	if err != nil {
		return nil, err
	}

	docsByID := make(map[string]trec.Document, len(docs))
	for _, d := range docs {
		docsByID[d.ID] = d
	}
	queryText := make(map[string]string, len(queries))
	for _, q := range queries {
		queryText[q.ID] = q.Text
	}

	tasks := e.collectTasks(candidateRun, docsByID, queryText)
	e.log.Info("Reranking", "queries", len(tasks), "top_n", e.cfg.TopN, "workers", e.cfg.Workers)

	results := make([]taskResult, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, task := range tasks {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = taskResult{status: statusSkipped}
				return nil
			}
			results[i] = e.rerankQuery(gctx, task)
			return nil
		})
	}
	// Workers never return errors; per-query failures degrade to fallback.
	_ = g.Wait()

	report := &Report{Queries: len(tasks)}
	var entries []trec.RunEntry
	for i, res := range results {
		switch res.status {
		case statusReranked:
			report.Reranked++
		case statusFallback:
			report.Fallbacks = append(report.Fallbacks, tasks[i].queryID)
		case statusSkipped:
			report.Skipped++
			continue
		}
		entries = append(entries, res.entries...)
	}

	if err := trec.WriteRun(outPath, entries); err != nil {
		return nil, err
	}

	e.log.Info("Run written",
		"path", outPath,
		"reranked", report.Reranked,
		"fallbacks", len(report.Fallbacks),
		"skipped", report.Skipped,
	)
	for _, qid := range report.Fallbacks {
		e.log.Warn("Query kept BM25 ordering", "query_id", qid)
	}

	if ctx.Err() != nil {
		e.log.Warn("Rerank interrupted; run file holds completed queries only")
	}

	return report, nil
}

// collectTasks groups the candidate run per query, keeps the top-N
// candidates, resolves their texts, and applies the query limit.
func (e *Engine) collectTasks(run []trec.RunEntry, docsByID map[string]trec.Document, queryText map[string]string) []queryTask {
	groups, order := trec.GroupRun(run)

	var tasks []queryTask
	for _, qid := range order {
		if e.cfg.QueryLimit > 0 && len(tasks) >= e.cfg.QueryLimit {
			break
		}
		text, ok := queryText[qid]
		if !ok {
			e.log.Warn("Run references unknown query", "query_id", qid)
			continue
		}

		var candidates []trec.Document
		for _, entry := range groups[qid] {
			if entry.Rank > e.cfg.TopN {
				continue
			}
			doc, ok := docsByID[entry.DocID]
			if !ok {
				e.log.Warn("Run references unknown document", "query_id", qid, "doc_id", entry.DocID)
				continue
			}
			candidates = append(candidates, doc)
		}
		if len(candidates) == 0 {
			continue
		}

		tasks = append(tasks, queryTask{queryID: qid, queryText: text, candidates: candidates})
	}
	return tasks
}

// rerankQuery runs the retry loop for one query and always produces a
// usable ordering: the model's on success, BM25's on exhaustion. A
// rate-limited reply waits out the configured pause without consuming a
// retry, so a sustained 429 window delays the run instead of silently
// degrading it to BM25 order; only cancellation breaks the wait.
func (e *Engine) rerankQuery(ctx context.Context, task queryTask) taskResult {
	prompt := buildPrompt(task.queryText, task.candidates, e.cfg.DocCharBudget, e.fewShot)
	log := e.log.WithQuery(task.queryID)

	attempt := 0
	for attempt <= e.cfg.MaxRetries {
		if err := e.limiter.Wait(ctx); err != nil {
			return taskResult{status: statusSkipped}
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout())
		response, err := e.gen.Generate(reqCtx, prompt)
		cancel()

		var ranking *Ranking
		if err == nil {
			ranking, err = ParseRanking(response, len(task.candidates))
		}
		if err != nil {
			if ctx.Err() != nil {
				return taskResult{status: statusSkipped}
			}
			if apperrors.IsRateLimited(err) {
				log.Warn("Rate limited, pausing", "wait", e.cfg.RateWait())
				if !e.sleep(ctx, e.cfg.RateWait()) {
					return taskResult{status: statusSkipped}
				}
				continue
			}

			attempt++
			msg := "Generate failed"
			if apperrors.IsParseError(err) {
				msg = "Unparseable response"
			}
			log.Warn(msg, "attempt", attempt, "error", err)
			if attempt <= e.cfg.MaxRetries && !e.sleep(ctx, e.backoff(attempt)) {
				return taskResult{status: statusSkipped}
			}
			continue
		}

		return taskResult{
			entries: e.entriesFromRanking(task, ranking),
			status:  statusReranked,
		}
	}

	return taskResult{
		entries: e.fallbackEntries(task),
		status:  statusFallback,
	}
}

// backoff returns the exponential delay before retrying after the given
// failed attempt.
func (e *Engine) backoff(attempt int) time.Duration {
	return e.cfg.InitialBackoff() << (attempt - 1)
}

// sleep waits for d, returning false if the context was cancelled first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// entriesFromRanking converts a parsed ranking into run entries with
// reciprocal-rank synthetic scores. Candidates the model did not mention
// follow the parsed ones in their BM25 order.
func (e *Engine) entriesFromRanking(task queryTask, ranking *Ranking) []trec.RunEntry {
	full := ranking.Complete(len(task.candidates))

	entries := make([]trec.RunEntry, len(full))
	for rank, idx := range full {
		entries[rank] = trec.RunEntry{
			QueryID: task.queryID,
			DocID:   task.candidates[idx-1].ID,
			Rank:    rank + 1,
			Score:   1.0 / float64(rank+1),
			Tag:     e.tag,
		}
	}
	return entries
}

// fallbackEntries emits the unmodified BM25 ordering for a failed query.
func (e *Engine) fallbackEntries(task queryTask) []trec.RunEntry {
	entries := make([]trec.RunEntry, len(task.candidates))
	for i, doc := range task.candidates {
		entries[i] = trec.RunEntry{
			QueryID: task.queryID,
			DocID:   doc.ID,
			Rank:    i + 1,
			Score:   1.0 / float64(i+1),
			Tag:     e.tag,
		}
	}
	return entries
}
