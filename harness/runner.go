package harness

// EncodedBatch is a fixed-shape token representation of a prompt batch:
// every row has the same width, padded on the left and truncated on the
// left so the most recent context survives. Mask holds 1 for real tokens
// and 0 for padding.
type EncodedBatch struct {
	InputIDs [][]int
	Mask     [][]int
	Width    int
}

// ModelRunner executes one forward step of a causal model over a batch and
// returns the logits of the final position for every batch member. Backends
// can be ONNX sessions, HTTP inference servers, or mocks; implementations
// live in the runners package. A runner that hits an out-of-resource
// condition must return an error wrapping ErrResourceExhausted so that
// batch-size probing can recover.
type ModelRunner interface {
	Step(inputIDs [][]int, mask [][]int) ([][]float32, error)
	Close() error
}

// Seq2SeqRunner executes one decoder step of an encoder-decoder model. The
// source batch feeds the encoder; decoderIDs carry the decoder-side tokens
// generated so far. The decoder output does not echo the source.
type Seq2SeqRunner interface {
	Step(source [][]int, sourceMask [][]int, decoderIDs [][]int) ([][]float32, error)
	Close() error
}
