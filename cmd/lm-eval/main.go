package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lm-eval-go/eval"
	"lm-eval-go/harness"
	"lm-eval-go/results"
	"lm-eval-go/runners"
	"lm-eval-go/tasks"
)

// runConfig is the YAML configuration for an evaluation run. Flags
// override file values.
type runConfig struct {
	Model struct {
		// Kind selects the adapter: causal, seq2seq, or http.
		Kind string `yaml:"kind"`
		// Dir holds model.onnx plus tokenizer files for local kinds.
		Dir string `yaml:"dir"`
		// URL is the sidecar address for the http kind.
		URL string `yaml:"url"`
		// DecoderStartToken seeds the decoder for seq2seq models.
		DecoderStartToken int `yaml:"decoder_start_token"`
	} `yaml:"model"`

	Task    string `yaml:"task"`
	DataDir string `yaml:"data_dir"`

	BatchSize      string `yaml:"batch_size"`
	MaxBatchSize   int    `yaml:"max_batch_size"`
	MaxGenToks     int    `yaml:"max_gen_toks"`
	MaxLength      int    `yaml:"max_length"`
	NumGenerations int    `yaml:"num_generations"`
	Limit          int    `yaml:"limit"`

	OutputJSONL string `yaml:"output_jsonl"`
	OutputCSV   string `yaml:"output_csv"`
	Summary     string `yaml:"summary"`
	CacheFile   string `yaml:"cache_file"`

	Verbose bool `yaml:"verbose"`
}

func defaultRunConfig() runConfig {
	var cfg runConfig
	cfg.Model.Kind = "causal"
	cfg.BatchSize = "1"
	cfg.DataDir = "data"
	cfg.NumGenerations = 1
	return cfg
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	root := &cobra.Command{
		Use:          "lm-eval",
		Short:        "Evaluate language models on benchmark tasks",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newTasksCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the registered benchmark tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range tasks.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var configPath string
	flags := defaultRunConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark task against a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, &cfg, &flags)
			setupLogging(cfg.Verbose)
			return runEval(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&flags.Model.Kind, "model-kind", flags.Model.Kind, "model kind: causal, seq2seq, or http")
	cmd.Flags().StringVar(&flags.Model.Dir, "model-dir", "", "directory with model.onnx and tokenizer files")
	cmd.Flags().StringVar(&flags.Model.URL, "model-url", "", "inference sidecar URL for the http kind")
	cmd.Flags().StringVar(&flags.Task, "task", "", "task name (see lm-eval tasks)")
	cmd.Flags().StringVar(&flags.DataDir, "data-dir", flags.DataDir, "directory with task dataset files")
	cmd.Flags().StringVar(&flags.BatchSize, "batch-size", flags.BatchSize, `batch size, a positive integer or "auto"`)
	cmd.Flags().IntVar(&flags.MaxBatchSize, "max-batch-size", 0, "upper bound for automatic batch size detection")
	cmd.Flags().IntVar(&flags.MaxGenToks, "max-gen-toks", 0, "maximum tokens generated per request")
	cmd.Flags().IntVar(&flags.MaxLength, "max-length", 0, "maximum total sequence length")
	cmd.Flags().IntVar(&flags.NumGenerations, "num-generations", flags.NumGenerations, "completions per record; above one enables seeded sampling")
	cmd.Flags().IntVar(&flags.Limit, "limit", 0, "evaluate at most this many records (0 = all)")
	cmd.Flags().StringVar(&flags.OutputJSONL, "output-jsonl", "", "write per-sample records to this JSONL file")
	cmd.Flags().StringVar(&flags.OutputCSV, "output-csv", "", "write per-sample rows to this CSV file")
	cmd.Flags().StringVar(&flags.Summary, "summary", "", "write aggregated metrics to this JSON file")
	cmd.Flags().StringVar(&flags.CacheFile, "cache-file", "", "append generation cache records to this JSONL file")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

// applyFlagOverrides copies explicitly set flags over the file config.
func applyFlagOverrides(cmd *cobra.Command, cfg, flags *runConfig) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("model-kind") {
		cfg.Model.Kind = flags.Model.Kind
	}
	if set("model-dir") {
		cfg.Model.Dir = flags.Model.Dir
	}
	if set("model-url") {
		cfg.Model.URL = flags.Model.URL
	}
	if set("task") {
		cfg.Task = flags.Task
	}
	if set("data-dir") {
		cfg.DataDir = flags.DataDir
	}
	if set("batch-size") {
		cfg.BatchSize = flags.BatchSize
	}
	if set("max-batch-size") {
		cfg.MaxBatchSize = flags.MaxBatchSize
	}
	if set("max-gen-toks") {
		cfg.MaxGenToks = flags.MaxGenToks
	}
	if set("max-length") {
		cfg.MaxLength = flags.MaxLength
	}
	if set("num-generations") {
		cfg.NumGenerations = flags.NumGenerations
	}
	if set("limit") {
		cfg.Limit = flags.Limit
	}
	if set("output-jsonl") {
		cfg.OutputJSONL = flags.OutputJSONL
	}
	if set("output-csv") {
		cfg.OutputCSV = flags.OutputCSV
	}
	if set("summary") {
		cfg.Summary = flags.Summary
	}
	if set("cache-file") {
		cfg.CacheFile = flags.CacheFile
	}
	if set("verbose") {
		cfg.Verbose = flags.Verbose
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runEval(cfg runConfig) error {
	if cfg.Task == "" {
		return fmt.Errorf("no task selected (use --task or the config file)")
	}
	task, err := tasks.Get(cfg.Task, cfg.DataDir)
	if err != nil {
		return err
	}

	lm, closers, err := buildModel(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	evaluator := eval.NewEvaluator(lm)
	if cfg.NumGenerations > 0 {
		evaluator.NumGenerations = cfg.NumGenerations
	}
	evaluator.Limit = cfg.Limit

	result, err := evaluator.Run(task)
	if err != nil {
		return err
	}

	if cfg.OutputJSONL != "" {
		w, err := results.NewJSONLWriter(cfg.OutputJSONL)
		if err != nil {
			return err
		}
		if err := w.WriteResult(result); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	if cfg.OutputCSV != "" {
		w, err := results.NewCSVWriter(cfg.OutputCSV)
		if err != nil {
			return err
		}
		if err := w.WriteResult(result); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	if cfg.Summary != "" {
		if err := results.WriteSummary(cfg.Summary, []*eval.Result{result}); err != nil {
			return err
		}
	}

	fmt.Printf("task: %s\n", result.Task)
	fmt.Printf("run:  %s\n", result.RunID)
	for _, name := range sortedMetricNames(result.Metrics) {
		fmt.Printf("%s: %.4f\n", name, result.Metrics[name])
	}
	return nil
}

func sortedMetricNames(metrics map[string]float64) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildModel assembles tokenizer, runner, cache, and adapter for the
// configured model kind. The returned closers run in reverse order.
func buildModel(cfg runConfig) (harness.LM, []func(), error) {
	batch, err := harness.ParseBatchSpec(cfg.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	opts := []harness.ConfigOption{harness.WithBatch(batch)}
	if cfg.MaxBatchSize > 0 {
		opts = append(opts, harness.WithMaxBatchSize(cfg.MaxBatchSize))
	}
	if cfg.MaxGenToks > 0 {
		opts = append(opts, harness.WithMaxGenToks(cfg.MaxGenToks))
	}
	if cfg.MaxLength > 0 {
		opts = append(opts, harness.WithMaxLength(cfg.MaxLength))
	}
	if cfg.Model.Kind == "seq2seq" {
		opts = append(opts, harness.WithDecoderStartToken(cfg.Model.DecoderStartToken))
	}

	var closers []func()
	var cache harness.CacheHook
	if cfg.CacheFile != "" {
		jc, err := harness.NewJSONLCache(cfg.CacheFile)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { jc.Close() })
		cache = jc
	}

	if cfg.Model.Dir == "" && cfg.Model.Kind != "http" {
		return nil, nil, fmt.Errorf("model kind %q requires --model-dir", cfg.Model.Kind)
	}

	newHarnessConfig := func(model string) (hc *harness.Config, err error) {
		// NewConfig panics on invalid combinations; surface that as an
		// error at the CLI boundary.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("invalid model configuration: %v", r)
			}
		}()
		return harness.NewConfig(model, opts...), nil
	}

	switch strings.ToLower(cfg.Model.Kind) {
	case "causal":
		tok, err := runners.NewHFTokenizer(cfg.Model.Dir)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func() { tok.Close() })
		runner, err := runners.NewONNXCausalRunner(filepath.Join(cfg.Model.Dir, "model.onnx"), tok.VocabSize())
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func() { runner.Close() })
		hc, err := newHarnessConfig(cfg.Model.Dir)
		if err != nil {
			return nil, closers, err
		}
		lm, err := harness.NewCausalAdapter(hc, runner, tok, cache)
		if err != nil {
			return nil, closers, err
		}
		return lm, closers, nil

	case "seq2seq":
		tok, err := runners.NewHFTokenizer(cfg.Model.Dir)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func() { tok.Close() })
		runner, err := runners.NewONNXSeq2SeqRunner(filepath.Join(cfg.Model.Dir, "model.onnx"), tok.VocabSize())
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func() { runner.Close() })
		hc, err := newHarnessConfig(cfg.Model.Dir)
		if err != nil {
			return nil, closers, err
		}
		lm, err := harness.NewSeq2SeqAdapter(hc, runner, tok, cache)
		if err != nil {
			return nil, closers, err
		}
		return lm, closers, nil

	case "http":
		if cfg.Model.URL == "" {
			return nil, closers, fmt.Errorf("model kind http requires --model-url")
		}
		if cfg.Model.Dir == "" {
			return nil, closers, fmt.Errorf("model kind http requires --model-dir for tokenizer files")
		}
		tok, err := runners.NewHFTokenizer(cfg.Model.Dir)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func() { tok.Close() })
		runner, err := runners.NewHTTPRunner(cfg.Model.URL)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func() { runner.Close() })
		hc, err := newHarnessConfig(cfg.Model.URL)
		if err != nil {
			return nil, closers, err
		}
		lm, err := harness.NewCausalAdapter(hc, runner, tok, cache)
		if err != nil {
			return nil, closers, err
		}
		return lm, closers, nil
	}
	return nil, closers, fmt.Errorf("unknown model kind %q (want causal, seq2seq, or http)", cfg.Model.Kind)
}
