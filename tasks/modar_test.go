package tasks

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeDataset(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestModArDocToText(t *testing.T) {
	task := NewModAr("")
	doc := Doc{
		"instruction": "Complete: {inputs}",
		"inputs":      "2+2=",
		"outputs":     "4",
	}
	if got := task.DocToText(doc); got != "Complete: 2+2=" {
		t.Errorf("DocToText = %q, want %q", got, "Complete: 2+2=")
	}
	if got := task.DocToTarget(doc); got != " 4" {
		t.Errorf("DocToTarget = %q, want %q", got, " 4")
	}
}

func TestModArDocToTextTrimsTemplate(t *testing.T) {
	task := NewModAr("")
	doc := Doc{
		"instruction": "  Solve each problem.\n\n{inputs}\n",
		"inputs":      "5*3=",
	}
	want := "Solve each problem.\n\n5*3="
	if got := task.DocToText(doc); got != want {
		t.Errorf("DocToText = %q, want %q", got, want)
	}
}

func TestModArConstructRequest(t *testing.T) {
	task := NewModAr("")
	doc := Doc{"instruction": "{inputs}", "inputs": "1+1=", "outputs": "2"}
	req := task.ConstructRequest(doc)
	if req.Prompt != "1+1=" {
		t.Errorf("Prompt = %q, want %q", req.Prompt, "1+1=")
	}
	if !reflect.DeepEqual(req.Args.Until, []string{"\n"}) {
		t.Errorf("Until = %v, want [\\n]", req.Args.Until)
	}
}

func TestModArProcessResults(t *testing.T) {
	task := NewModAr("")
	doc := Doc{"instruction": "Complete: {inputs}", "inputs": "2+2=", "outputs": "4"}

	tests := []struct {
		name        string
		doc         Doc
		completions []string
		want        float64
	}{
		{"exact match", doc, []string{"4"}, 1},
		{"match with whitespace", doc, []string{" 4 "}, 1},
		{"wrong answer", doc, []string{"5"}, 0},
		{"first completion scored", doc, []string{"5", "4"}, 0},
		{"withheld label", Doc{"inputs": "2+2=", "outputs": ""}, []string{"4"}, 0},
		{"no completions", doc, nil, 0},
	}
	for _, tc := range tests {
		got := task.ProcessResults(tc.doc, tc.completions)
		if got["acc"] != tc.want {
			t.Errorf("%s: acc = %v, want %v", tc.name, got["acc"], tc.want)
		}
	}
}

func TestModArAggregation(t *testing.T) {
	task := NewModAr("")
	agg, ok := task.Aggregation()["acc"]
	if !ok {
		t.Fatal("missing acc aggregation")
	}
	if got := agg([]float64{1, 0, 1, 1}); got != 0.75 {
		t.Errorf("mean = %v, want 0.75", got)
	}
	if got := agg(nil); got != 0 {
		t.Errorf("mean of empty = %v, want 0", got)
	}
	if !task.HigherIsBetter()["acc"] {
		t.Error("acc should be higher-is-better")
	}
}

func TestModArLoadsPartitions(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "train.jsonl",
		`{"instruction": "Complete: {inputs}", "inputs": "1+1=", "outputs": "2"}
{"instruction": "Complete: {inputs}", "inputs": "2+3=", "outputs": "5"}
`)
	writeDataset(t, dir, "test.jsonl",
		`{"instruction": "Complete: {inputs}", "inputs": "4+4=", "outputs": "8"}
`)

	task := NewModAr(dir)
	if !task.HasTrainingDocs() || !task.HasTestDocs() || task.HasValidationDocs() {
		t.Fatal("unexpected partition availability")
	}
	train, err := task.TrainingDocs()
	if err != nil {
		t.Fatalf("TrainingDocs: %v", err)
	}
	if len(train) != 2 {
		t.Fatalf("len(train) = %d, want 2", len(train))
	}
	test, err := task.TestDocs()
	if err != nil {
		t.Fatalf("TestDocs: %v", err)
	}
	if len(test) != 1 || test[0]["outputs"] != "8" {
		t.Fatalf("unexpected test docs: %v", test)
	}
}

func TestLoadJSONLCoercesScalars(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "data.jsonl",
		`{"text": "hi", "id": 7, "flag": true, "note": null, "nested": {"a": 1}}
`)
	docs, err := LoadJSONL(filepath.Join(dir, "data.jsonl"))
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	doc := docs[0]
	if doc["text"] != "hi" || doc["id"] != "7" || doc["flag"] != "true" || doc["note"] != "" {
		t.Errorf("unexpected coercion: %v", doc)
	}
	if _, ok := doc["nested"]; ok {
		t.Error("nested object should be skipped")
	}
}

func TestLoadJSONLBadLine(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "data.jsonl", `{"ok": "yes"}
not json
`)
	if _, err := LoadJSONL(filepath.Join(dir, "data.jsonl")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRegistry(t *testing.T) {
	names := Names()
	if !reflect.DeepEqual(names, []string{"modar"}) {
		t.Errorf("Names = %v", names)
	}
	task, err := Get("modar", "data")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Name() != "modar" {
		t.Errorf("Name = %q", task.Name())
	}
	if _, err := Get("nope", ""); err == nil {
		t.Error("expected error for unknown task")
	}
}
