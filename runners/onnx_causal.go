package runners

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"lm-eval-go/harness"
)

// ONNXCausalRunner runs a causal language model exported to ONNX. Each Step
// feeds the whole padded batch through the model and returns the logits of
// the final position per batch member.
type ONNXCausalRunner struct {
	modelPath string
	vocabSize int
	options   *ort.SessionOptions
}

var _ harness.ModelRunner = (*ONNXCausalRunner)(nil)

// NewONNXCausalRunner initializes the ONNX runtime (once per process) and
// prepares session options for the model at modelPath.
func NewONNXCausalRunner(modelPath string, vocabSize int) (*ONNXCausalRunner, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if err := options.SetIntraOpNumThreads(4); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set threads: %w", err)
	}

	return &ONNXCausalRunner{
		modelPath: modelPath,
		vocabSize: vocabSize,
		options:   options,
	}, nil
}

// Step runs one forward pass over the batch.
func (r *ONNXCausalRunner) Step(inputIDs [][]int, mask [][]int) ([][]float32, error) {
	batchSize := len(inputIDs)
	if batchSize == 0 {
		return nil, fmt.Errorf("no sequences to process")
	}
	width := len(inputIDs[0])

	inputShape := ort.NewShape(int64(batchSize), int64(width))
	idData := make([]int64, 0, batchSize*width)
	maskData := make([]int64, 0, batchSize*width)
	for i := range inputIDs {
		if len(inputIDs[i]) != width {
			return nil, fmt.Errorf("ragged batch: row %d has width %d, want %d", i, len(inputIDs[i]), width)
		}
		for j := range inputIDs[i] {
			idData = append(idData, int64(inputIDs[i][j]))
			maskData = append(maskData, int64(mask[i][j]))
		}
	}

	idTensor, err := ort.NewTensor(inputShape, idData)
	if err != nil {
		return nil, wrapONNXError("failed to create input tensor", err)
	}
	defer idTensor.Destroy()

	maskTensor, err := ort.NewTensor(inputShape, maskData)
	if err != nil {
		return nil, wrapONNXError("failed to create mask tensor", err)
	}
	defer maskTensor.Destroy()

	outputShape := ort.NewShape(int64(batchSize), int64(width), int64(r.vocabSize))
	outputData := make([]float32, batchSize*width*r.vocabSize)
	outputTensor, err := ort.NewTensor(outputShape, outputData)
	if err != nil {
		return nil, wrapONNXError("failed to create output tensor", err)
	}
	defer outputTensor.Destroy()

	session, err := ort.NewAdvancedSession(
		r.modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{idTensor, maskTensor},
		[]ort.Value{outputTensor},
		r.options,
	)
	if err != nil {
		return nil, wrapONNXError("failed to create session", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return nil, wrapONNXError("inference failed", err)
	}

	logits := outputTensor.GetData()
	out := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		last := (i*width + width - 1) * r.vocabSize
		out[i] = logits[last : last+r.vocabSize]
	}
	return out, nil
}

// Close releases the session options. The shared runtime environment stays
// up for other runners in the process.
func (r *ONNXCausalRunner) Close() error {
	if r.options != nil {
		r.options.Destroy()
		r.options = nil
	}
	return nil
}

// wrapONNXError maps allocator failures onto harness.ErrResourceExhausted
// so batch-size probing can back off, and wraps everything else verbatim.
func wrapONNXError(msg string, err error) error {
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "alloc") || strings.Contains(s, "memory") || strings.Contains(s, "out of") {
		return fmt.Errorf("%s: %w: %v", msg, harness.ErrResourceExhausted, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
