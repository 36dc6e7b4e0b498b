package harness

import (
	"fmt"
	"testing"
)

func testDecode(tok *MockTokenizer) func(ids []int) string {
	return func(ids []int) string {
		text, _ := tok.Decode(ids, false)
		return text
	}
}

func enc(tok *MockTokenizer, s string) []int {
	ids, _ := tok.Encode(s, false)
	return ids
}

func TestGenerateUntilOrderAndTruncation(t *testing.T) {
	tok := NewMockTokenizer()
	runner := NewMockRunner(map[string][]int{
		"aaaa": enc(tok, "1\nx"),
		"bb":   enc(tok, "22\ny"),
		"c":    enc(tok, "333\nz"),
	}, testDecode(tok))

	cfg := NewConfig("mock", WithBatch(FixedBatch(2)), WithProgress(false))
	adapter, err := NewCausalAdapter(cfg, runner, tok, nil)
	if err != nil {
		t.Fatalf("NewCausalAdapter failed: %v", err)
	}

	requests := []Request{
		{Prompt: "aaaa", Args: GenArgs{Until: []string{"\n"}}},
		{Prompt: "bb", Args: GenArgs{Until: []string{"\n"}}},
		{Prompt: "c", Args: GenArgs{Until: []string{"\n"}}},
	}

	results, err := adapter.GenerateUntil(requests, "test", 1)
	if err != nil {
		t.Fatalf("GenerateUntil failed: %v", err)
	}
	if len(results) != len(requests) {
		t.Fatalf("expected %d results, got %d", len(requests), len(results))
	}

	want := []string{"1", "22", "333"}
	for i, w := range want {
		if len(results[i]) != 1 {
			t.Fatalf("request %d: expected one completion, got %d", i, len(results[i]))
		}
		if results[i][0] != w {
			t.Errorf("request %d: got %q, want %q", i, results[i][0], w)
		}
	}
}

func TestGenerateUntilEmpty(t *testing.T) {
	tok := NewMockTokenizer()
	cfg := NewConfig("mock", WithProgress(false))
	adapter, err := NewCausalAdapter(cfg, NewMockRunner(nil, testDecode(tok)), tok, nil)
	if err != nil {
		t.Fatalf("NewCausalAdapter failed: %v", err)
	}

	results, err := adapter.GenerateUntil(nil, "test", 1)
	if err != nil {
		t.Fatalf("GenerateUntil failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

// limitedRunner simulates resource exhaustion above a maximum batch size.
type limitedRunner struct {
	inner *MockRunner
	limit int
}

func (r *limitedRunner) Step(inputIDs [][]int, mask [][]int) ([][]float32, error) {
	if len(inputIDs) > r.limit {
		return nil, fmt.Errorf("allocator failure at batch %d: %w", len(inputIDs), ErrResourceExhausted)
	}
	return r.inner.Step(inputIDs, mask)
}

func (r *limitedRunner) Close() error {
	return r.inner.Close()
}

func TestGenerateUntilAutoBatchFallsBackToOne(t *testing.T) {
	tok := NewMockTokenizer()
	runner := &limitedRunner{
		inner: NewMockRunner(map[string][]int{
			"p1": enc(tok, "a\n"),
			"p2": enc(tok, "b\n"),
			"p3": enc(tok, "c\n"),
		}, testDecode(tok)),
		limit: 1,
	}

	cfg := NewConfig("mock",
		WithBatch(AutoBatch()),
		WithMaxBatchSize(8),
		WithMaxLength(64),
		WithMaxGenToks(16),
		WithProgress(false),
	)
	adapter, err := NewCausalAdapter(cfg, runner, tok, nil)
	if err != nil {
		t.Fatalf("NewCausalAdapter failed: %v", err)
	}

	requests := []Request{
		{Prompt: "p1", Args: GenArgs{Until: []string{"\n"}}},
		{Prompt: "p2", Args: GenArgs{Until: []string{"\n"}}},
		{Prompt: "p3", Args: GenArgs{Until: []string{"\n"}}},
	}

	results, err := adapter.GenerateUntil(requests, "test", 1)
	if err != nil {
		t.Fatalf("run should complete at batch size 1: %v", err)
	}
	if adapter.batchSizeFound != 1 {
		t.Errorf("expected discovered batch size 1, got %d", adapter.batchSizeFound)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if results[i][0] != w {
			t.Errorf("request %d: got %q, want %q", i, results[i][0], w)
		}
	}
}

func TestGenerateUntilAutoBatchDetectedOnce(t *testing.T) {
	tok := NewMockTokenizer()
	runner := NewMockRunner(map[string][]int{
		"q": enc(tok, "r\n"),
	}, testDecode(tok))

	cfg := NewConfig("mock",
		WithBatch(AutoBatch()),
		WithMaxBatchSize(16),
		WithMaxLength(64),
		WithMaxGenToks(16),
		WithProgress(false),
	)
	adapter, err := NewCausalAdapter(cfg, runner, tok, nil)
	if err != nil {
		t.Fatalf("NewCausalAdapter failed: %v", err)
	}

	reqs := []Request{{Prompt: "q", Args: GenArgs{Until: []string{"\n"}}}}
	if _, err := adapter.GenerateUntil(reqs, "test", 1); err != nil {
		t.Fatalf("GenerateUntil failed: %v", err)
	}
	if adapter.batchSizeFound != 16 {
		t.Fatalf("expected discovered batch size 16, got %d", adapter.batchSizeFound)
	}

	// A second call reuses the discovered value instead of probing again.
	if _, err := adapter.GenerateUntil(reqs, "test", 1); err != nil {
		t.Fatalf("second GenerateUntil failed: %v", err)
	}
	if adapter.batchSizeFound != 16 {
		t.Errorf("discovered batch size changed to %d", adapter.batchSizeFound)
	}
}

func TestGenerateUntilMultiSample(t *testing.T) {
	tok := NewMockTokenizer()
	runner := NewMockRunner(map[string][]int{
		"s": enc(tok, "ok\n"),
	}, testDecode(tok))

	cfg := NewConfig("mock", WithBatch(FixedBatch(4)), WithProgress(false))
	adapter, err := NewCausalAdapter(cfg, runner, tok, nil)
	if err != nil {
		t.Fatalf("NewCausalAdapter failed: %v", err)
	}

	requests := []Request{{Prompt: "s", Args: GenArgs{Until: []string{"\n"}}}}
	results, err := adapter.GenerateUntil(requests, "test", 3)
	if err != nil {
		t.Fatalf("GenerateUntil failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if len(results[0]) != 3 {
		t.Fatalf("expected 3 sampled completions, got %d", len(results[0]))
	}
	for g, c := range results[0] {
		if c != "ok" {
			t.Errorf("generation %d: got %q, want %q", g, c, "ok")
		}
	}
}

func TestGenerateUntilRecordsCache(t *testing.T) {
	tok := NewMockTokenizer()
	runner := NewMockRunner(map[string][]int{
		"k": enc(tok, "v\n"),
	}, testDecode(tok))

	cache := NewMemoryCache()
	cfg := NewConfig("mock", WithProgress(false))
	adapter, err := NewCausalAdapter(cfg, runner, tok, cache)
	if err != nil {
		t.Fatalf("NewCausalAdapter failed: %v", err)
	}

	requests := []Request{{Prompt: "k", Args: GenArgs{Until: []string{"\n"}}}}
	if _, err := adapter.GenerateUntil(requests, "test", 1); err != nil {
		t.Fatalf("GenerateUntil failed: %v", err)
	}

	until := []string{"\n", tok.EOSToken()}
	got := cache.Get("k", until)
	if len(got) != 1 || len(got[0]) != 1 || got[0][0] != "v" {
		t.Fatalf("cache missing completion, got %v", got)
	}
}

// mockSeq2SeqRunner scripts decoder outputs keyed by the decoded source
// text. The decoder stream does not echo the source.
type mockSeq2SeqRunner struct {
	scripts map[string][]int
	decode  func(ids []int) string
	vocab   int
}

func (m *mockSeq2SeqRunner) Step(source [][]int, sourceMask [][]int, decoderIDs [][]int) ([][]float32, error) {
	logits := make([][]float32, len(source))
	for i, row := range source {
		real := make([]int, 0, len(row))
		for j, tokID := range row {
			if sourceMask[i][j] == 1 {
				real = append(real, tokID)
			}
		}
		tok := 3
		if script, ok := m.scripts[m.decode(real)]; ok {
			// Decoder holds the start token plus everything generated.
			step := len(decoderIDs[i]) - 1
			if step < len(script) {
				tok = script[step]
			}
		}
		oneHot := make([]float32, m.vocab)
		oneHot[tok] = 100
		logits[i] = oneHot
	}
	return logits, nil
}

func (m *mockSeq2SeqRunner) Close() error {
	return nil
}

func TestSeq2SeqGenerateUntil(t *testing.T) {
	tok := NewMockTokenizer()
	runner := &mockSeq2SeqRunner{
		scripts: map[string][]int{
			"translate: hi": enc(tok, "salut\nmore"),
		},
		decode: testDecode(tok),
		vocab:  1024,
	}

	cfg := NewConfig("mock", WithProgress(false))
	adapter, err := NewSeq2SeqAdapter(cfg, runner, tok, nil)
	if err != nil {
		t.Fatalf("NewSeq2SeqAdapter failed: %v", err)
	}

	requests := []Request{{Prompt: "translate: hi", Args: GenArgs{Until: []string{"\n"}}}}
	results, err := adapter.GenerateUntil(requests, "test", 1)
	if err != nil {
		t.Fatalf("GenerateUntil failed: %v", err)
	}
	if results[0][0] != "salut" {
		t.Errorf("got %q, want %q", results[0][0], "salut")
	}
}
