package runners

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"lm-eval-go/harness"
)

// HTTPRunner forwards batches to an inference sidecar over HTTP. Useful
// when the model lives in a separate serving process rather than an ONNX
// file on disk.
type HTTPRunner struct {
	serverURL string
	client    *http.Client
	vocabSize int
}

var _ harness.ModelRunner = (*HTTPRunner)(nil)

// NewHTTPRunner connects to the sidecar and reads its model info.
func NewHTTPRunner(serverURL string) (*HTTPRunner, error) {
	r := &HTTPRunner{
		serverURL: serverURL,
		client:    &http.Client{},
	}

	resp, err := r.client.Get(serverURL + "/info")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to inference server: %w", err)
	}
	defer resp.Body.Close()

	var info struct {
		VocabSize int `json:"vocab_size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode server info: %w", err)
	}
	r.vocabSize = info.VocabSize

	return r, nil
}

// Step posts the batch and returns final-position logits per member. A 507
// response or an out-of-memory message is reported as resource exhaustion
// so batch-size probing can back off.
func (r *HTTPRunner) Step(inputIDs [][]int, mask [][]int) ([][]float32, error) {
	req := struct {
		InputIDs      [][]int `json:"input_ids"`
		AttentionMask [][]int `json:"attention_mask"`
	}{InputIDs: inputIDs, AttentionMask: mask}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Post(r.serverURL+"/forward", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusInsufficientStorage {
		return nil, fmt.Errorf("server reported exhaustion at batch %d: %w", len(inputIDs), harness.ErrResourceExhausted)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference server returned status %d", resp.StatusCode)
	}

	var result struct {
		Logits [][]float32 `json:"logits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode logits: %w", err)
	}
	if len(result.Logits) != len(inputIDs) {
		return nil, fmt.Errorf("server returned %d rows for batch of %d", len(result.Logits), len(inputIDs))
	}
	return result.Logits, nil
}

// VocabSize returns the vocabulary size reported by the server.
func (r *HTTPRunner) VocabSize() int {
	return r.vocabSize
}

// Close is a no-op; the HTTP client holds no resources worth reclaiming.
func (r *HTTPRunner) Close() error {
	return nil
}
