package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/goccy/go-json"

	"lm-eval-go/eval"
)

// JSONLWriter streams per-sample records to a JSON Lines file, one line
// per sample with the run and task identifiers repeated on each line.
type JSONLWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

type sampleRecord struct {
	RunID       string             `json:"run_id"`
	Task        string             `json:"task"`
	Index       int                `json:"index"`
	Prompt      string             `json:"prompt"`
	Target      string             `json:"target"`
	Completions []string           `json:"completions"`
	Metrics     map[string]float64 `json:"metrics"`
}

func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	return &JSONLWriter{f: f, enc: json.NewEncoder(f)}, nil
}

// WriteResult appends every sample of the result.
func (w *JSONLWriter) WriteResult(result *eval.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range result.Samples {
		rec := sampleRecord{
			RunID:       result.RunID,
			Task:        result.Task,
			Index:       s.Index,
			Prompt:      s.Prompt,
			Target:      s.Target,
			Completions: s.Completions,
			Metrics:     s.Metrics,
		}
		if err := w.enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write sample %d: %w", s.Index, err)
		}
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// CSVWriter writes one row per sample with metric columns fixed at the
// first result written, flushing after each result.
type CSVWriter struct {
	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	metrics []string
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create results file: %w", err)
	}
	return &CSVWriter{f: f, w: csv.NewWriter(f)}, nil
}

func (w *CSVWriter) WriteResult(result *eval.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.metrics == nil {
		w.metrics = metricNames(result)
		header := append([]string{"run_id", "task", "index", "prompt", "target", "completion"}, w.metrics...)
		if err := w.w.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, s := range result.Samples {
		completion := ""
		if len(s.Completions) > 0 {
			completion = s.Completions[0]
		}
		row := []string{result.RunID, result.Task, strconv.Itoa(s.Index), s.Prompt, s.Target, completion}
		for _, name := range w.metrics {
			row = append(row, strconv.FormatFloat(s.Metrics[name], 'f', -1, 64))
		}
		if err := w.w.Write(row); err != nil {
			return fmt.Errorf("failed to write sample %d: %w", s.Index, err)
		}
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func metricNames(result *eval.Result) []string {
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteSummary writes the aggregated metrics of one or more results as an
// indented JSON document.
func WriteSummary(path string, results []*eval.Result) error {
	type summary struct {
		RunID   string             `json:"run_id"`
		Task    string             `json:"task"`
		Metrics map[string]float64 `json:"metrics"`
		Samples int                `json:"samples"`
	}
	out := make([]summary, len(results))
	for i, r := range results {
		out[i] = summary{RunID: r.RunID, Task: r.Task, Metrics: r.Metrics, Samples: len(r.Samples)}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
