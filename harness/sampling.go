package harness

import (
	"math"
	"math/rand"
)

// pickToken selects the next token from final-position logits. A nil rng
// means greedy decoding (argmax); otherwise the token is drawn from the
// softmax distribution using the seeded source.
func pickToken(logits []float32, rng *rand.Rand) int {
	if len(logits) == 0 {
		return 0
	}

	if rng == nil {
		maxIdx := 0
		maxVal := logits[0]
		for i, v := range logits {
			if v > maxVal {
				maxVal = v
				maxIdx = i
			}
		}
		return maxIdx
	}

	// Softmax with max subtraction for numeric stability.
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sumExp float32
	probs := make([]float32, len(logits))
	for i, v := range logits {
		probs[i] = float32(math.Exp(float64(v - maxLogit)))
		sumExp += probs[i]
	}

	r := rng.Float32() * sumExp
	var cum float32
	for i, p := range probs {
		cum += p
		if r <= cum {
			return i
		}
	}
	return len(probs) - 1
}
