package tasks

import (
	"path/filepath"
	"strings"

	"lm-eval-go/harness"
)

// ModAr is the modified-arithmetic completion benchmark. Each record's
// instruction shows several solved expressions and one unfinished
// expression; the model must complete it, and the answer ends at the first
// newline.
type ModAr struct {
	dataDir  string
	training []Doc
	test     []Doc
}

// NewModAr creates the task over a directory holding train.jsonl and
// test.jsonl.
func NewModAr(dataDir string) *ModAr {
	return &ModAr{dataDir: dataDir}
}

func (t *ModAr) Name() string {
	return "modar"
}

func (t *ModAr) HasTrainingDocs() bool {
	return true
}

func (t *ModAr) HasValidationDocs() bool {
	return false
}

func (t *ModAr) HasTestDocs() bool {
	return true
}

func (t *ModAr) TrainingDocs() ([]Doc, error) {
	if t.training == nil {
		docs, err := LoadJSONL(filepath.Join(t.dataDir, "train.jsonl"))
		if err != nil {
			return nil, err
		}
		t.training = docs
	}
	return t.training, nil
}

func (t *ModAr) ValidationDocs() ([]Doc, error) {
	return nil, nil
}

func (t *ModAr) TestDocs() ([]Doc, error) {
	if t.test == nil {
		docs, err := LoadJSONL(filepath.Join(t.dataDir, "test.jsonl"))
		if err != nil {
			return nil, err
		}
		t.test = docs
	}
	return t.test, nil
}

// DocToText fills the instruction template with the record's inputs field.
func (t *ModAr) DocToText(doc Doc) string {
	prompt := strings.ReplaceAll(doc["instruction"], "{inputs}", doc["inputs"])
	return strings.TrimSpace(prompt)
}

// DocToTarget returns the expected answer with its leading space.
func (t *ModAr) DocToTarget(doc Doc) string {
	return " " + doc["outputs"]
}

// ConstructRequest builds the generation request; answers end at the first
// newline.
func (t *ModAr) ConstructRequest(doc Doc) harness.Request {
	return harness.Request{
		Prompt: t.DocToText(doc),
		Args:   harness.GenArgs{Until: []string{"\n"}},
	}
}

// ProcessResults scores the first completion by exact match against the
// record's outputs field after trimming incidental whitespace. Records
// without ground truth (withheld test labels) score 0 by policy.
func (t *ModAr) ProcessResults(doc Doc, completions []string) map[string]float64 {
	if doc["outputs"] == "" || len(completions) == 0 {
		return map[string]float64{"acc": 0}
	}
	completion := strings.TrimSpace(completions[0])
	if completion == doc["outputs"] {
		return map[string]float64{"acc": 1}
	}
	return map[string]float64{"acc": 0}
}

func (t *ModAr) Aggregation() map[string]AggregateFunc {
	return map[string]AggregateFunc{"acc": Mean}
}

func (t *ModAr) HigherIsBetter() map[string]bool {
	return map[string]bool{"acc": true}
}
