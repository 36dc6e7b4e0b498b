package harness

// Tokenizer is the encode/decode surface the harness needs from a tokenizer
// backend. Implementations live in the runners package; MockTokenizer in
// this package covers tests.
type Tokenizer interface {
	// Encode converts text to token IDs. addSpecialTokens controls whether
	// the tokenizer's special markers (BOS and friends) are inserted.
	Encode(text string, addSpecialTokens bool) ([]int, error)

	// Decode converts token IDs back to text. With skipSpecialTokens set,
	// EOS and padding tokens are dropped from the output.
	Decode(tokenIDs []int, skipSpecialTokens bool) (string, error)

	// EOSToken returns the literal end-of-sequence marker string.
	EOSToken() string

	// EOSTokenID returns the end-of-sequence token ID.
	EOSTokenID() int

	// PadTokenID returns the padding token ID.
	PadTokenID() int
}
