package results

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"lm-eval-go/eval"
)

func sampleResult() *eval.Result {
	return &eval.Result{
		RunID:   "run-1",
		Task:    "modar",
		Metrics: map[string]float64{"acc": 0.5},
		Samples: []eval.Sample{
			{Index: 0, Prompt: "2+2=", Target: " 4", Completions: []string{"4"}, Metrics: map[string]float64{"acc": 1}},
			{Index: 1, Prompt: "3+3=", Target: " 6", Completions: []string{"7"}, Metrics: map[string]float64{"acc": 0}},
		},
	}
}

func TestJSONLWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	w, err := NewJSONLWriter(path)
	if err != nil {
		t.Fatalf("NewJSONLWriter: %v", err)
	}
	if err := w.WriteResult(sampleResult()); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var records []sampleRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec sampleRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].RunID != "run-1" || records[0].Task != "modar" {
		t.Errorf("unexpected identifiers: %+v", records[0])
	}
	if records[1].Prompt != "3+3=" || records[1].Metrics["acc"] != 0 {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.WriteResult(sampleResult()); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	header := rows[0]
	if header[len(header)-1] != "acc" {
		t.Errorf("header = %v, want acc column last", header)
	}
	if rows[1][3] != "2+2=" || rows[1][len(rows[1])-1] != "1" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[2][5] != "7" || rows[2][len(rows[2])-1] != "0" {
		t.Errorf("unexpected second row: %v", rows[2])
	}
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	if err := WriteSummary(path, []*eval.Result{sampleResult()}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []struct {
		Task    string             `json:"task"`
		Metrics map[string]float64 `json:"metrics"`
		Samples int                `json:"samples"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Task != "modar" || out[0].Metrics["acc"] != 0.5 || out[0].Samples != 2 {
		t.Errorf("unexpected summary: %+v", out)
	}
}
