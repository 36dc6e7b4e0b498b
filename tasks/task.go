package tasks

import (
	"lm-eval-go/harness"
)

// Doc is one dataset record, a flat field-to-value map.
type Doc map[string]string

// AggregateFunc folds per-sample metric values into a single score.
type AggregateFunc func([]float64) float64

// Mean averages the values; zero when there are none.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Task describes one benchmark: which dataset partitions exist, how a
// record renders into a prompt and target, how to build the generation
// request, and how completions are scored.
type Task interface {
	Name() string

	HasTrainingDocs() bool
	HasValidationDocs() bool
	HasTestDocs() bool
	TrainingDocs() ([]Doc, error)
	ValidationDocs() ([]Doc, error)
	TestDocs() ([]Doc, error)

	// DocToText renders the record into the prompt text.
	DocToText(doc Doc) string

	// DocToTarget returns the expected continuation for the record.
	DocToTarget(doc Doc) string

	// ConstructRequest builds exactly one generation request for the
	// record, with task-specific generation arguments.
	ConstructRequest(doc Doc) harness.Request

	// ProcessResults scores the model's completions for the record and
	// returns named metric values.
	ProcessResults(doc Doc, completions []string) map[string]float64

	// Aggregation maps each metric name to its fold over the run.
	Aggregation() map[string]AggregateFunc

	// HigherIsBetter reports the direction of each metric.
	HigherIsBetter() map[string]bool
}
