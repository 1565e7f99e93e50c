package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/dense"
	"github.com/lexbench/lex-bench/internal/evaluation"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
	"github.com/lexbench/lex-bench/internal/plot"
	"github.com/lexbench/lex-bench/internal/prepare"
	"github.com/lexbench/lex-bench/internal/rerank"
	"github.com/lexbench/lex-bench/internal/sparse"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lex-bench",
		Short: "Lex Bench - retrieval benchmark for Turkish legal Q&A",
		Long: `Lex Bench prepares a Turkish legal question-answer dataset, runs
sparse, dense and LLM-reranked retrieval over it, and scores every run
with MAP, nDCG and recall.

Run 'lex-bench run' to execute the full pipeline.
Run 'lex-bench --help' for the individual stages.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		prepareCmd(),
		fixQrelsCmd(),
		bm25Cmd(),
		denseCmd(),
		rerankCmd(),
		evaluateCmd(),
		plotCmd(),
		runCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads config and builds the logger from the global flags.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log := logger.New(level, cfg.Log.Format)

	return cfg, log, nil
}

func ensureOutputsDir(cfg *config.Config) error {
	return os.MkdirAll(cfg.Data.OutputsDir, 0o755)
}

func runPath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Data.OutputsDir, name)
}

func prepareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Convert the raw CSV dataset into corpus, queries and raw qrels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			p := prepare.NewPreparer(cfg.Data, log)
			result, err := p.Run()
			if err != nil {
				return err
			}

			log.Info("Dataset prepared",
				"documents", result.Documents,
				"queries", result.Queries,
				"judgments", result.Judgments,
				"skipped_rows", result.Skipped,
			)
			return nil
		},
	}
}

func fixQrelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix-qrels",
		Short: "Normalize raw qrels into the four-column TREC format",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			p := prepare.NewPreparer(cfg.Data, log)
			result, err := prepare.FixQrels(p.RawQrelsPath(), p.QrelsPath(), log)
			if err != nil {
				return err
			}

			log.Info("Qrels fixed",
				"written", result.Written,
				"merged", result.Merged,
				"skipped", result.Skipped,
			)
			return nil
		},
	}
}

func bm25Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bm25",
		Short: "Run the BM25 sparse baseline and write its run file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := ensureOutputsDir(cfg); err != nil {
				return err
			}

			p := prepare.NewPreparer(cfg.Data, log)
			r := sparse.NewRanker(cfg.BM25, log)
			return r.Run(p.CorpusPath(), p.QueriesPath(), runPath(cfg, "run_bm25.txt"))
		},
	}
}

func denseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dense",
		Short: "Run the dense retrieval baseline against the embedding service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := ensureOutputsDir(cfg); err != nil {
				return err
			}

			embedder, err := dense.NewOpenAIEmbedder(cfg.Dense)
			if err != nil {
				return err
			}

			p := prepare.NewPreparer(cfg.Data, log)
			r := dense.NewRanker(cfg.Dense, embedder, log)
			return r.Run(cmd.Context(), p.CorpusPath(), p.QueriesPath(), runPath(cfg, "run_sbert.txt"))
		},
	}
}

func rerankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rerank",
		Short: "Rerank BM25 candidates with the configured LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := ensureOutputsDir(cfg); err != nil {
				return err
			}
			fewShot, _ := cmd.Flags().GetBool("few-shot")

			return runRerank(cmd.Context(), cfg, log, fewShot)
		},
	}

	cmd.Flags().Bool("few-shot", false, "include worked ranking examples in the prompt")

	return cmd
}

func runRerank(ctx context.Context, cfg *config.Config, log *logger.Logger, fewShot bool) error {
	gen, err := rerank.NewGeminiGenerator(ctx, cfg.Rerank)
	if err != nil {
		return err
	}

	outName := "run_gemini_zeroshot.txt"
	if fewShot {
		outName = "run_gemini_fewshot.txt"
	}

	p := prepare.NewPreparer(cfg.Data, log)
	engine := rerank.NewEngine(cfg.Rerank, gen, fewShot, log)
	report, err := engine.Run(ctx, p.CorpusPath(), p.QueriesPath(), runPath(cfg, "run_bm25.txt"), runPath(cfg, outName))
	if err != nil {
		return err
	}

	log.Info("Rerank finished",
		"queries", report.Queries,
		"reranked", report.Reranked,
		"fallbacks", len(report.Fallbacks),
		"skipped", report.Skipped,
	)
	return nil
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Score every configured run file against the qrels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := ensureOutputsDir(cfg); err != nil {
				return err
			}

			p := prepare.NewPreparer(cfg.Data, log)
			e := evaluation.NewEvaluator(cfg.Eval.Cutoff, log)
			reports, err := e.EvaluateAll(p.QrelsPath(), cfg.Eval.Systems)
			if err != nil {
				return err
			}

			fmt.Print(e.FormatTable(reports))
			return e.WriteReport(cfg.Eval.ReportPath, reports)
		},
	}
}

func plotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plot",
		Short: "Draw the metrics report as a grouped bar chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := ensureOutputsDir(cfg); err != nil {
				return err
			}

			c := plot.NewChart(cfg.Plot, log)
			return c.Render(cfg.Eval.ReportPath, cfg.Eval.Cutoff)
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline: prepare through plot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := ensureOutputsDir(cfg); err != nil {
				return err
			}
			skipRerank, _ := cmd.Flags().GetBool("skip-rerank")

			return runPipeline(cmd.Context(), cfg, log, skipRerank)
		},
	}

	cmd.Flags().Bool("skip-rerank", false, "skip the LLM rerank stages")

	return cmd
}

func runPipeline(ctx context.Context, cfg *config.Config, log *logger.Logger, skipRerank bool) error {
	p := prepare.NewPreparer(cfg.Data, log)

	stage := func(name string, fn func() error) error {
		start := time.Now()
		if err := fn(); err != nil {
			return err
		}
		log.Info("Stage finished", "stage", name, "duration", time.Since(start).Round(time.Millisecond))
		return nil
	}

	if err := stage("prepare", func() error {
		_, err := p.Run()
		return err
	}); err != nil {
		return err
	}
	if err := stage("fix-qrels", func() error {
		_, err := prepare.FixQrels(p.RawQrelsPath(), p.QrelsPath(), log)
		return err
	}); err != nil {
		return err
	}

	if err := stage("bm25", func() error {
		return sparse.NewRanker(cfg.BM25, log).Run(p.CorpusPath(), p.QueriesPath(), runPath(cfg, "run_bm25.txt"))
	}); err != nil {
		return err
	}

	if err := stage("dense", func() error {
		embedder, err := dense.NewOpenAIEmbedder(cfg.Dense)
		if err != nil {
			return err
		}
		return dense.NewRanker(cfg.Dense, embedder, log).Run(ctx, p.CorpusPath(), p.QueriesPath(), runPath(cfg, "run_sbert.txt"))
	}); err != nil {
		return err
	}

	if skipRerank {
		log.Info("Rerank stages skipped")
	} else {
		if err := stage("rerank", func() error {
			return runRerank(ctx, cfg, log, false)
		}); err != nil {
			return err
		}
		if err := stage("rerank-few-shot", func() error {
			return runRerank(ctx, cfg, log, true)
		}); err != nil {
			return err
		}
	}

	return stage("evaluate+plot", func() error {
		e := evaluation.NewEvaluator(cfg.Eval.Cutoff, log)
		reports, err := e.EvaluateAll(p.QrelsPath(), cfg.Eval.Systems)
		if err != nil {
			return err
		}
		fmt.Print(e.FormatTable(reports))
		if err := e.WriteReport(cfg.Eval.ReportPath, reports); err != nil {
			return err
		}
		return plot.NewChart(cfg.Plot, log).Render(cfg.Eval.ReportPath, cfg.Eval.Cutoff)
	})
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lex-bench %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
