package runners

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"lm-eval-go/harness"
)

// ONNXSeq2SeqRunner runs an encoder-decoder model exported as a single ONNX
// graph taking input_ids, attention_mask, and decoder_input_ids. The
// encoder side is re-run every step; session state is not carried between
// steps.
type ONNXSeq2SeqRunner struct {
	modelPath string
	vocabSize int
	options   *ort.SessionOptions
}

var _ harness.Seq2SeqRunner = (*ONNXSeq2SeqRunner)(nil)

// NewONNXSeq2SeqRunner prepares session options for the model at modelPath.
func NewONNXSeq2SeqRunner(modelPath string, vocabSize int) (*ONNXSeq2SeqRunner, error) {
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

	return &ONNXSeq2SeqRunner{
		modelPath: modelPath,
		vocabSize: vocabSize,
		options:   options,
	}, nil
}

// Step runs one decoder step over the batch.
func (r *ONNXSeq2SeqRunner) Step(source [][]int, sourceMask [][]int, decoderIDs [][]int) ([][]float32, error) {
	batchSize := len(source)
	if batchSize == 0 {
		return nil, fmt.Errorf("no sequences to process")
	}
	srcWidth := len(source[0])
	decWidth := len(decoderIDs[0])

	srcShape := ort.NewShape(int64(batchSize), int64(srcWidth))
	decShape := ort.NewShape(int64(batchSize), int64(decWidth))

	srcData := make([]int64, 0, batchSize*srcWidth)
	maskData := make([]int64, 0, batchSize*srcWidth)
	decData := make([]int64, 0, batchSize*decWidth)
	for i := 0; i < batchSize; i++ {
		if len(decoderIDs[i]) != decWidth {
			return nil, fmt.Errorf("ragged decoder batch: row %d has width %d, want %d", i, len(decoderIDs[i]), decWidth)
		}
		for j := range source[i] {
			srcData = append(srcData, int64(source[i][j]))
			maskData = append(maskData, int64(sourceMask[i][j]))
		}
		for j := range decoderIDs[i] {
			decData = append(decData, int64(decoderIDs[i][j]))
		}
	}

	srcTensor, err := ort.NewTensor(srcShape, srcData)
	if err != nil {
		return nil, wrapONNXError("failed to create source tensor", err)
	}
	defer srcTensor.Destroy()

	maskTensor, err := ort.NewTensor(srcShape, maskData)
	if err != nil {
		return nil, wrapONNXError("failed to create mask tensor", err)
	}
	defer maskTensor.Destroy()

	decTensor, err := ort.NewTensor(decShape, decData)
	if err != nil {
		return nil, wrapONNXError("failed to create decoder tensor", err)
	}
	defer decTensor.Destroy()

	outputShape := ort.NewShape(int64(batchSize), int64(decWidth), int64(r.vocabSize))
	outputData := make([]float32, batchSize*decWidth*r.vocabSize)
	outputTensor, err := ort.NewTensor(outputShape, outputData)
	if err != nil {
		return nil, wrapONNXError("failed to create output tensor", err)
	}
	defer outputTensor.Destroy()

	session, err := ort.NewAdvancedSession(
		r.modelPath,
		[]string{"input_ids", "attention_mask", "decoder_input_ids"},
		[]string{"logits"},
		[]ort.Value{srcTensor, maskTensor, decTensor},
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
		last := (i*decWidth + decWidth - 1) * r.vocabSize
		out[i] = logits[last : last+r.vocabSize]
	}
	return out, nil
}

// Close releases the session options.
func (r *ONNXSeq2SeqRunner) Close() error {
	if r.options != nil {
		r.options.Destroy()
		r.options = nil
	}
	return nil
}
