package dense

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/trec"
)

// fakeEmbedder maps each text to a fixed vector and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	batches [][]string
}

func (f *fakeEmbedder) Model() string { return "fake-model" }

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := f.vectors[t]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = l2Normalize(append([]float32(nil), vec...))
	}
	return out, nil
}

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("norm after normalize = %v, want 1.0", norm)
	}

	// Zero vector is returned unchanged.
	z := l2Normalize([]float32{0, 0})
	if z[0] != 0 || z[1] != 0 {
		t.Errorf("zero vector changed: %v", z)
	}
}

func TestCosine_Bounds(t *testing.T) {
	a := l2Normalize([]float32{1, 2, 3})
	b := l2Normalize([]float32{-3, 1, -2})

	got := cosine(a, b)
	if got < -1.0-1e-6 || got > 1.0+1e-6 {
		t.Errorf("cosine = %v, outside [-1, 1]", got)
	}
}

func TestCosine_SelfSimilarity(t *testing.T) {
	v := l2Normalize([]float32{0.2, 0.5, 0.8})

	if got := cosine(v, v); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("self cosine = %v, want 1.0", got)
	}
}

func TestCosine_Opposite(t *testing.T) {
	a := l2Normalize([]float32{1, 0})
	b := l2Normalize([]float32{-1, 0})

	if got := cosine(a, b); math.Abs(got+1.0) > 1e-6 {
		t.Errorf("opposite cosine = %v, want -1.0", got)
	}
}

func testFiles(t *testing.T, dir string) (corpusPath, queriesPath string) {
	t.Helper()
	corpusPath = filepath.Join(dir, "corpus.jsonl")
	queriesPath = filepath.Join(dir, "queries.jsonl")

	docs := []trec.Document{
		{ID: "doc_0", Text: "ceza hukuku"},
		{ID: "doc_1", Text: "iş hukuku"},
		{ID: "doc_2", Text: "borçlar hukuku"},
	}
	if err := trec.WriteDocuments(corpusPath, docs); err != nil {
		t.Fatal(err)
	}

	queries := []trec.Query{{ID: "q_0", Text: "hırsızlık cezası"}}
	if err := trec.WriteQueries(queriesPath, queries); err != nil {
		t.Fatal(err)
	}
	return corpusPath, queriesPath
}

func newFake() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: map[string][]float32{
			"ceza hukuku":      {1, 0, 0},
			"iş hukuku":        {0, 1, 0},
			"borçlar hukuku":   {0, 0, 1},
			"hırsızlık cezası": {0.9, 0.1, 0},
		},
	}
}

func TestRanker_Run(t *testing.T) {
	dir := t.TempDir()
	corpusPath, queriesPath := testFiles(t, dir)
	runPath := filepath.Join(dir, "run_sbert.txt")

	cfg := config.DenseConfig{BatchSize: 2, TopK: 3, Tag: "SBERT"}
	r := NewRanker(cfg, newFake(), logger.Default())

	if err := r.Run(context.Background(), corpusPath, queriesPath, runPath); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	entries, err := trec.ReadRun(runPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].DocID != "doc_0" {
		t.Errorf("top document = %s, want doc_0 (closest vector)", entries[0].DocID)
	}
	if entries[0].Rank != 1 || entries[0].Tag != "SBERT" {
		t.Errorf("top entry = %+v", entries[0])
	}
}

func TestRanker_BatchesRespectConfiguredSize(t *testing.T) {
	dir := t.TempDir()
	corpusPath, queriesPath := testFiles(t, dir)
	runPath := filepath.Join(dir, "run_sbert.txt")

	fake := newFake()
	cfg := config.DenseConfig{BatchSize: 2, TopK: 3, Tag: "SBERT"}
	r := NewRanker(cfg, fake, logger.Default())

	if err := r.Run(context.Background(), corpusPath, queriesPath, runPath); err != nil {
		t.Fatal(err)
	}

	for _, batch := range fake.batches {
		if len(batch) > 2 {
			t.Errorf("batch size %d exceeds configured 2", len(batch))
		}
	}
}

func TestRanker_CorpusCacheHit(t *testing.T) {
	dir := t.TempDir()
	corpusPath, queriesPath := testFiles(t, dir)

	cfg := config.DenseConfig{
		BatchSize: 8,
		TopK:      3,
		Tag:       "SBERT",
		CachePath: filepath.Join(dir, "emb.gob"),
	}

	first := newFake()
	r := NewRanker(cfg, first, logger.Default())
	if err := r.Run(context.Background(), corpusPath, queriesPath, filepath.Join(dir, "run1.txt")); err != nil {
		t.Fatal(err)
	}
	callsWithColdCache := first.calls

	second := newFake()
	r2 := NewRanker(cfg, second, logger.Default())
	if err := r2.Run(context.Background(), corpusPath, queriesPath, filepath.Join(dir, "run2.txt")); err != nil {
		t.Fatal(err)
	}

	// Second run should only encode queries, not the corpus.
	if second.calls >= callsWithColdCache {
		t.Errorf("cache hit should reduce embed calls: cold=%d warm=%d", callsWithColdCache, second.calls)
	}

	run1, _ := trec.ReadRun(filepath.Join(dir, "run1.txt"))
	run2, _ := trec.ReadRun(filepath.Join(dir, "run2.txt"))
	if len(run1) != len(run2) || run1[0].DocID != run2[0].DocID {
		t.Error("cached run should match uncached run")
	}
}

func TestCorpusFingerprint_ChangesWithContent(t *testing.T) {
	docs := []trec.Document{{ID: "doc_0", Text: "a"}}
	changed := []trec.Document{{ID: "doc_0", Text: "b"}}

	if corpusFingerprint("m", docs) == corpusFingerprint("m", changed) {
		t.Error("fingerprint should change when document text changes")
	}
	if corpusFingerprint("m1", docs) == corpusFingerprint("m2", docs) {
		t.Error("fingerprint should change when model changes")
	}
}
