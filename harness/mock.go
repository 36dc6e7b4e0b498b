package harness

// MockTokenizer maps each rune to its code point. It exists so adapter and
// stop-detector behaviour can be tested without a real tokenizer backend.
type MockTokenizer struct {
	eosID int
	padID int
}

// NewMockTokenizer creates a mock tokenizer with EOS id 3 and pad id 0.
func NewMockTokenizer() *MockTokenizer {
	return &MockTokenizer{eosID: 3, padID: 0}
}

// Encode converts each rune to its code point.
func (t *MockTokenizer) Encode(text string, addSpecialTokens bool) ([]int, error) {
	runes := []rune(text)
	ids := make([]int, len(runes))
	for i, r := range runes {
		ids[i] = int(r)
	}
	return ids, nil
}

// Decode converts code points back to text. With skipSpecialTokens set, EOS
// and pad tokens are dropped.
func (t *MockTokenizer) Decode(tokenIDs []int, skipSpecialTokens bool) (string, error) {
	runes := make([]rune, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if skipSpecialTokens && (id == t.eosID || id == t.padID) {
			continue
		}
		runes = append(runes, rune(id))
	}
	return string(runes), nil
}

// EOSToken returns the single-rune EOS marker.
func (t *MockTokenizer) EOSToken() string {
	return string(rune(t.eosID))
}

// EOSTokenID returns the EOS token ID.
func (t *MockTokenizer) EOSTokenID() int {
	return t.eosID
}

// PadTokenID returns the pad token ID.
func (t *MockTokenizer) PadTokenID() int {
	return t.padID
}

// MockRunner replays scripted completions as one-hot logits. Each prompt in
// the table maps to the token IDs its completion should produce; once a
// script is exhausted, or no script matches, the runner emits EOS. The
// runner is stateless: the current step is derived from how far the row has
// grown past its prompt, so batch reordering cannot desynchronize it.
type MockRunner struct {
	vocab   int
	eosID   int
	scripts map[string][]int
	decode  func(ids []int) string
}

// NewMockRunner creates a runner over the given prompt-to-script table.
// The decode function renders a row's unpadded token IDs back to text.
func NewMockRunner(scripts map[string][]int, decode func(ids []int) string) *MockRunner {
	vocab := 256
	for _, script := range scripts {
		for _, tok := range script {
			if tok >= vocab {
				vocab = tok + 1
			}
		}
	}
	return &MockRunner{vocab: vocab, eosID: 3, scripts: scripts, decode: decode}
}

// Step emits the next scripted token for every batch member.
func (m *MockRunner) Step(inputIDs [][]int, mask [][]int) ([][]float32, error) {
	logits := make([][]float32, len(inputIDs))
	for i, row := range inputIDs {
		real := make([]int, 0, len(row))
		for j, tok := range row {
			if mask[i][j] == 1 {
				real = append(real, tok)
			}
		}
		oneHot := make([]float32, m.vocab)
		// Large enough that sampled decoding also picks the scripted token.
		oneHot[m.next(real)] = 100
		logits[i] = oneHot
	}
	return logits, nil
}

func (m *MockRunner) next(real []int) int {
	text := m.decode(real)
	for prompt, script := range m.scripts {
		if len(text) < len(prompt) || text[:len(prompt)] != prompt {
			continue
		}
		step := len([]rune(text)) - len([]rune(prompt))
		if step < len(script) {
			return script[step]
		}
		return m.eosID
	}
	return m.eosID
}

// Close is a no-op.
func (m *MockRunner) Close() error {
	return nil
}
