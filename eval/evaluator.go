package eval

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lm-eval-go/harness"
	"lm-eval-go/tasks"
)

// Sample holds one scored record of a run.
type Sample struct {
	Index       int                `json:"index"`
	Prompt      string             `json:"prompt"`
	Target      string             `json:"target"`
	Completions []string           `json:"completions"`
	Metrics     map[string]float64 `json:"metrics"`
}

// Result is the outcome of evaluating one task.
type Result struct {
	RunID    string             `json:"run_id"`
	Task     string             `json:"task"`
	Metrics  map[string]float64 `json:"metrics"`
	Samples  []Sample           `json:"samples"`
	Duration time.Duration      `json:"duration_ns"`
}

// Evaluator runs tasks against a language model.
type Evaluator struct {
	LM harness.LM

	// NumGenerations is the number of completions requested per record;
	// values above one select seeded sampling.
	NumGenerations int

	// Limit caps the number of records evaluated; zero means all.
	Limit int
}

// NewEvaluator creates an evaluator producing one completion per record.
func NewEvaluator(lm harness.LM) *Evaluator {
	return &Evaluator{LM: lm, NumGenerations: 1}
}

// Run evaluates the task over its preferred partition: test documents when
// present, then validation, then training.
func (e *Evaluator) Run(task tasks.Task) (*Result, error) {
	docs, partition, err := evalDocs(task)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents for %s: %w", task.Name(), err)
	}
	if e.Limit > 0 && len(docs) > e.Limit {
		docs = docs[:e.Limit]
	}

	runID := uuid.New().String()
	slog.Info("starting evaluation",
		"run_id", runID,
		"task", task.Name(),
		"partition", partition,
		"docs", len(docs),
		"num_generations", e.NumGenerations)

	requests := make([]harness.Request, len(docs))
	for i, doc := range docs {
		requests[i] = task.ConstructRequest(doc)
	}

	start := time.Now()
	completions, err := e.LM.GenerateUntil(requests, task.Name(), e.NumGenerations)
	if err != nil {
		return nil, fmt.Errorf("generation failed for %s: %w", task.Name(), err)
	}

	perMetric := make(map[string][]float64)
	samples := make([]Sample, len(docs))
	for i, doc := range docs {
		metrics := task.ProcessResults(doc, completions[i])
		for name, value := range metrics {
			perMetric[name] = append(perMetric[name], value)
		}
		samples[i] = Sample{
			Index:       i,
			Prompt:      requests[i].Prompt,
			Target:      task.DocToTarget(doc),
			Completions: completions[i],
			Metrics:     metrics,
		}
	}

	aggregated := make(map[string]float64, len(perMetric))
	for name, fold := range task.Aggregation() {
		aggregated[name] = fold(perMetric[name])
	}

	result := &Result{
		RunID:    runID,
		Task:     task.Name(),
		Metrics:  aggregated,
		Samples:  samples,
		Duration: time.Since(start),
	}
	slog.Info("evaluation complete",
		"run_id", runID,
		"task", task.Name(),
		"metrics", aggregated,
		"duration", result.Duration)
	return result, nil
}

func evalDocs(task tasks.Task) ([]tasks.Doc, string, error) {
	switch {
	case task.HasTestDocs():
		docs, err := task.TestDocs()
		return docs, "test", err
	case task.HasValidationDocs():
		docs, err := task.ValidationDocs()
		return docs, "validation", err
	case task.HasTrainingDocs():
		docs, err := task.TrainingDocs()
		return docs, "train", err
	}
	return nil, "", fmt.Errorf("task %s has no documents", task.Name())
}
