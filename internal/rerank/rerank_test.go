package rerank

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/lexbench/lex-bench/internal/config"
	apperrors "github.com/lexbench/lex-bench/internal/pkg/errors"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"shorter than budget", "ceza", 10, "ceza"},
		{"exact budget", "ceza", 4, "ceza"},
		{"cut", "cezalandırılır", 4, "ceza"},
		{"multibyte safe", "şüpheli", 2, "şü"},
		{"zero budget", "ceza", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateRunes(tt.input, tt.n); got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	candidates := []trec.Document{
		{ID: "doc_3", Text: strings.Repeat("a", 600)},
		{ID: "doc_7", Text: "kısa metin"},
	}

	prompt := buildPrompt("Hırsızlık cezası nedir?", candidates, 500, false)

	if !strings.Contains(prompt, "Query: Hırsızlık cezası nedir?") {
		t.Error("prompt missing query")
	}
	if !strings.Contains(prompt, "[1] "+strings.Repeat("a", 500)+"\n") {
		t.Error("first document should be truncated to the character budget")
	}
	if strings.Contains(prompt, strings.Repeat("a", 501)) {
		t.Error("document exceeded the character budget")
	}
	if !strings.Contains(prompt, "[2] kısa metin") {
		t.Error("prompt missing second candidate")
	}
	if strings.Contains(prompt, "EXAMPLE 1") {
		t.Error("zero-shot prompt must not contain worked examples")
	}
}

func TestBuildPrompt_FewShot(t *testing.T) {
	prompt := buildPrompt("soru", []trec.Document{{ID: "d", Text: "metin"}}, 500, true)

	if !strings.Contains(prompt, "EXAMPLE 1") || !strings.Contains(prompt, "EXAMPLE 2") {
		t.Error("few-shot prompt must contain the worked examples")
	}
	if !strings.Contains(prompt, "NOW IT IS YOUR TURN:") {
		t.Error("few-shot prompt missing handoff marker")
	}
	// Examples come before the target query.
	if strings.Index(prompt, "EXAMPLE 1") > strings.Index(prompt, "Query: soru") {
		t.Error("examples must precede the target query")
	}
}

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		candidates int
		want       []int
		wantErr    bool
	}{
		{
			name:       "clean ranking",
			response:   "[2] > [1] > [3]",
			candidates: 3,
			want:       []int{2, 1, 3},
		},
		{
			name:       "commentary around the list",
			response:   "Sure! Based on relevance, the ranking is:\n[3] > [1]\nHope this helps.",
			candidates: 3,
			want:       []int{3, 1},
		},
		{
			name:       "duplicates keep first position",
			response:   "[1] > [2] > [1] > [3]",
			candidates: 3,
			want:       []int{1, 2, 3},
		},
		{
			name:       "out of range dropped",
			response:   "[9] > [2] > [0]",
			candidates: 3,
			want:       []int{2},
		},
		{
			name:       "no indices at all",
			response:   "I cannot rank these documents.",
			candidates: 3,
			wantErr:    true,
		},
		{
			name:       "empty response",
			response:   "",
			candidates: 3,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRanking(tt.response, tt.candidates)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRanking() error: %v", err)
			}
			if !reflect.DeepEqual(got.Indices, tt.want) {
				t.Errorf("Indices = %v, want %v", got.Indices, tt.want)
			}
		})
	}
}

func TestRanking_Complete(t *testing.T) {
	r := &Ranking{Indices: []int{3, 1}}

	got := r.Complete(4)
	want := []int{3, 1, 2, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Complete(4) = %v, want %v", got, want)
	}
}

// scriptedGenerator returns canned responses or errors per call.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses map[string]string // substring of prompt -> response
	err       error
	failErr   error // error for the leading failures; generic when nil
	failures  int   // number of leading calls that fail
	calls     int
}

func (s *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		if s.failErr != nil {
			return "", s.failErr
		}
		return "", errors.New("transient failure")
	}
	if s.err != nil {
		return "", s.err
	}
	for needle, resp := range s.responses {
		if strings.Contains(prompt, needle) {
			return resp, nil
		}
	}
	return "[1]", nil
}

func engineFixture(t *testing.T) (dir, corpusPath, queriesPath, candPath string) {
	t.Helper()
	dir = t.TempDir()
	corpusPath = filepath.Join(dir, "corpus.jsonl")
	queriesPath = filepath.Join(dir, "queries.jsonl")
	candPath = filepath.Join(dir, "run_bm25.txt")

	docs := []trec.Document{
		{ID: "doc_0", Text: "sözleşme hükümleri"},
		{ID: "doc_1", Text: "hırsızlık cezası"},
		{ID: "doc_2", Text: "yıllık izin"},
	}
	if err := trec.WriteDocuments(corpusPath, docs); err != nil {
		t.Fatal(err)
	}

	queries := []trec.Query{
		{ID: "q_0", Text: "hırsızlık suçu"},
		{ID: "q_1", Text: "izin hakkı"},
	}
	if err := trec.WriteQueries(queriesPath, queries); err != nil {
		t.Fatal(err)
	}

	run := []trec.RunEntry{
		{QueryID: "q_0", DocID: "doc_0", Rank: 1, Score: 3.0, Tag: "BM25"},
		{QueryID: "q_0", DocID: "doc_1", Rank: 2, Score: 2.0, Tag: "BM25"},
		{QueryID: "q_0", DocID: "doc_2", Rank: 3, Score: 1.0, Tag: "BM25"},
		{QueryID: "q_1", DocID: "doc_2", Rank: 1, Score: 2.0, Tag: "BM25"},
		{QueryID: "q_1", DocID: "doc_0", Rank: 2, Score: 1.0, Tag: "BM25"},
	}
	if err := trec.WriteRun(candPath, run); err != nil {
		t.Fatal(err)
	}
	return dir, corpusPath, queriesPath, candPath
}

func testRerankConfig() config.RerankConfig {
	return config.RerankConfig{
		Model:             "gemini-2.0-flash",
		TopN:              3,
		DocCharBudget:     500,
		MaxRetries:        2,
		BackoffSeconds:    0,
		TimeoutSeconds:    5,
		RequestsPerMinute: 60000, // effectively unlimited in tests
		Workers:           2,
		ZeroShotTag:       "GEMINI",
		FewShotTag:        "GEMINI_FEWSHOT",
	}
}

func TestEngine_Run_Reranks(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	gen := &scriptedGenerator{
		responses: map[string]string{
			"hırsızlık suçu": "[2] > [3] > [1]",
			"izin hakkı":     "[1] > [2]",
		},
	}

	e := NewEngine(testRerankConfig(), gen, false, logger.Default())
	report, err := e.Run(context.Background(), corpusPath, queriesPath, candPath, outPath)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Reranked != 2 || len(report.Fallbacks) != 0 {
		t.Errorf("report = %+v, want 2 reranked, 0 fallbacks", report)
	}

	entries, err := trec.ReadRun(outPath)
	if err != nil {
		t.Fatal(err)
	}

	groups, order := trec.GroupRun(entries)
	if !reflect.DeepEqual(order, []string{"q_0", "q_1"}) {
		t.Fatalf("query order = %v", order)
	}

	q0 := groups["q_0"]
	wantDocs := []string{"doc_1", "doc_2", "doc_0"} // model order [2] > [3] > [1]
	for i, want := range wantDocs {
		if q0[i].DocID != want {
			t.Errorf("q_0 rank %d = %s, want %s", i+1, q0[i].DocID, want)
		}
		if q0[i].Rank != i+1 {
			t.Errorf("q_0 entry %d rank = %d", i, q0[i].Rank)
		}
		if q0[i].Tag != "GEMINI" {
			t.Errorf("q_0 entry tag = %s, want GEMINI", q0[i].Tag)
		}
	}
	if q0[0].Score != 1.0 || q0[1].Score != 0.5 {
		t.Errorf("reciprocal scores wrong: %v, %v", q0[0].Score, q0[1].Score)
	}
}

func TestEngine_Run_FallbackKeepsBM25Order(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	// Every response is garbage, so every query exhausts retries and
	// falls back to the BM25 ordering truncated to top-N.
	gen := &scriptedGenerator{
		responses: map[string]string{
			"hırsızlık suçu": "no ranking here",
			"izin hakkı":     "still nothing",
		},
	}

	e := NewEngine(testRerankConfig(), gen, false, logger.Default())
	report, err := e.Run(context.Background(), corpusPath, queriesPath, candPath, outPath)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Reranked != 0 || len(report.Fallbacks) != 2 {
		t.Errorf("report = %+v, want 0 reranked, 2 fallbacks", report)
	}

	entries, err := trec.ReadRun(outPath)
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := trec.GroupRun(entries)

	q0 := groups["q_0"]
	wantDocs := []string{"doc_0", "doc_1", "doc_2"} // original BM25 order
	for i, want := range wantDocs {
		if q0[i].DocID != want {
			t.Errorf("fallback q_0 rank %d = %s, want %s", i+1, q0[i].DocID, want)
		}
	}
}

func TestEngine_Run_RetriesThenSucceeds(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	cfg := testRerankConfig()
	cfg.QueryLimit = 1

	gen := &scriptedGenerator{
		failures: 1,
		responses: map[string]string{
			"hırsızlık suçu": "[3] > [2] > [1]",
		},
	}

	e := NewEngine(cfg, gen, false, logger.Default())
	report, err := e.Run(context.Background(), corpusPath, queriesPath, candPath, outPath)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Queries != 1 {
		t.Fatalf("Queries = %d, want 1 (query limit)", report.Queries)
	}
	if report.Reranked != 1 {
		t.Errorf("Reranked = %d, want 1 after retry", report.Reranked)
	}
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want 2 (one failure, one success)", gen.calls)
	}
}

func TestEngine_Run_RateLimitDoesNotConsumeRetries(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	cfg := testRerankConfig()
	cfg.QueryLimit = 1
	cfg.MaxRetries = 0 // only the rate-limit path may keep trying
	cfg.RateWaitSeconds = 0

	gen := &scriptedGenerator{
		failures:  2,
		failErr:   apperrors.RateLimitedError(errors.New("quota exceeded")),
		responses: map[string]string{"hırsızlık suçu": "[2] > [1] > [3]"},
	}

	e := NewEngine(cfg, gen, false, logger.Default())
	report, err := e.Run(context.Background(), corpusPath, queriesPath, candPath, outPath)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Reranked != 1 || len(report.Fallbacks) != 0 {
		t.Errorf("report = %+v, want the rate-limited query reranked, not degraded", report)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3 (two rate-limited, one success)", gen.calls)
	}

	entries, err := trec.ReadRun(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].DocID != "doc_1" {
		t.Errorf("top doc = %s, want doc_1 from the model ordering", entries[0].DocID)
	}
}

func TestEngine_Run_TransientFailureStillExhaustsRetries(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	cfg := testRerankConfig()
	cfg.QueryLimit = 1
	cfg.MaxRetries = 0

	gen := &scriptedGenerator{failures: 1}

	e := NewEngine(cfg, gen, false, logger.Default())
	report, err := e.Run(context.Background(), corpusPath, queriesPath, candPath, outPath)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(report.Fallbacks) != 1 {
		t.Errorf("report = %+v, want 1 fallback with retries exhausted", report)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1 (no retries configured)", gen.calls)
	}
}

func TestEngine_Run_PartialParseAppendsRest(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	cfg := testRerankConfig()
	cfg.QueryLimit = 1

	// Model only mentions candidate 3; 1 and 2 follow in BM25 order.
	gen := &scriptedGenerator{
		responses: map[string]string{"hırsızlık suçu": "The best match is [3]."},
	}

	e := NewEngine(cfg, gen, false, logger.Default())
	if _, err := e.Run(context.Background(), corpusPath, queriesPath, candPath, outPath); err != nil {
		t.Fatal(err)
	}

	entries, err := trec.ReadRun(outPath)
	if err != nil {
		t.Fatal(err)
	}

	got := []string{entries[0].DocID, entries[1].DocID, entries[2].DocID}
	want := []string{"doc_2", "doc_0", "doc_1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEngine_Run_CancelledBeforeStart(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGenerator{}
	e := NewEngine(testRerankConfig(), gen, false, logger.Default())

	report, err := e.Run(ctx, corpusPath, queriesPath, candPath, outPath)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.Skipped != report.Queries {
		t.Errorf("all queries should be skipped on pre-cancelled context: %+v", report)
	}

	// Run file exists and is well formed (empty).
	entries, err := trec.ReadRun(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty run, got %d entries", len(entries))
	}
}

func TestEngine_FewShotTag(t *testing.T) {
	dir, corpusPath, queriesPath, candPath := engineFixture(t)
	outPath := filepath.Join(dir, "out.txt")

	gen := &scriptedGenerator{}
	e := NewEngine(testRerankConfig(), gen, true, logger.Default())

	if _, err := e.Run(context.Background(), corpusPath, queriesPath, candPath, outPath); err != nil {
		t.Fatal(err)
	}

	entries, err := trec.ReadRun(outPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Tag != "GEMINI_FEWSHOT" {
			t.Fatalf("tag = %s, want GEMINI_FEWSHOT", entry.Tag)
		}
	}
}
