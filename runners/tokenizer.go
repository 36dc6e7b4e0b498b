package runners

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daulet/tokenizers"
	"github.com/goccy/go-json"

	"lm-eval-go/harness"
)

// HFTokenizer wraps a HuggingFace tokenizer.json through the tokenizers
// bindings, with the special-token IDs resolved from the sibling config
// files the way model exports usually lay them out.
type HFTokenizer struct {
	tk       *tokenizers.Tokenizer
	eosToken string
	eosID    int
	bosID    int
	padID    int
}

var _ harness.Tokenizer = (*HFTokenizer)(nil)

// NewHFTokenizer loads tokenizer.json from modelDir and resolves special
// tokens from tokenizer_config.json and config.json. A missing pad token
// falls back to EOS, the usual arrangement for causal models.
func NewHFTokenizer(modelDir string) (*HFTokenizer, error) {
	tk, err := tokenizers.FromFile(filepath.Join(modelDir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	special := loadSpecialTokens(modelDir)

	t := &HFTokenizer{
		tk:       tk,
		eosToken: special.EOSToken,
		eosID:    special.EOSID,
		bosID:    special.BOSID,
		padID:    special.PadID,
	}

	if t.eosID < 0 && t.eosToken != "" {
		if ids, _ := tk.Encode(t.eosToken, false); len(ids) == 1 {
			t.eosID = int(ids[0])
		}
	}
	if t.eosID < 0 {
		tk.Close()
		return nil, fmt.Errorf("tokenizer in %s has no resolvable EOS token", modelDir)
	}
	if t.padID < 0 {
		t.padID = t.eosID
	}

	return t, nil
}

// Encode converts text to token IDs.
func (t *HFTokenizer) Encode(text string, addSpecialTokens bool) ([]int, error) {
	u32, _ := t.tk.Encode(text, addSpecialTokens)
	ids := make([]int, len(u32))
	for i, id := range u32 {
		ids[i] = int(id)
	}
	return ids, nil
}

// Decode converts token IDs back to text.
func (t *HFTokenizer) Decode(tokenIDs []int, skipSpecialTokens bool) (string, error) {
	u32 := make([]uint32, len(tokenIDs))
	for i, id := range tokenIDs {
		u32[i] = uint32(id)
	}
	return t.tk.Decode(u32, skipSpecialTokens), nil
}

// EOSToken returns the literal end-of-sequence marker.
func (t *HFTokenizer) EOSToken() string {
	return t.eosToken
}

// EOSTokenID returns the end-of-sequence token ID.
func (t *HFTokenizer) EOSTokenID() int {
	return t.eosID
}

// BOSTokenID returns the begin-of-sequence token ID, -1 when absent.
func (t *HFTokenizer) BOSTokenID() int {
	return t.bosID
}

// PadTokenID returns the padding token ID.
func (t *HFTokenizer) PadTokenID() int {
	return t.padID
}

// VocabSize returns the vocabulary size.
func (t *HFTokenizer) VocabSize() int {
	return int(t.tk.VocabSize())
}

// Close releases the native tokenizer.
func (t *HFTokenizer) Close() error {
	return t.tk.Close()
}

// specialTokens carries the special-token configuration gathered from a
// model directory. IDs default to -1 when unresolved.
type specialTokens struct {
	EOSToken string
	BOSToken string
	PadToken string
	EOSID    int
	BOSID    int
	PadID    int
}

// loadSpecialTokens merges tokenizer_config.json (token strings) and
// config.json (numeric IDs). Missing files are not an error; whatever is
// found wins, with config.json IDs taking precedence.
func loadSpecialTokens(dir string) specialTokens {
	s := specialTokens{EOSID: -1, BOSID: -1, PadID: -1}

	if data, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json")); err == nil {
		var cfg struct {
			EOSToken any `json:"eos_token"`
			BOSToken any `json:"bos_token"`
			PadToken any `json:"pad_token"`
		}
		if err := json.Unmarshal(data, &cfg); err == nil {
			s.EOSToken = extractTokenString(cfg.EOSToken)
			s.BOSToken = extractTokenString(cfg.BOSToken)
			s.PadToken = extractTokenString(cfg.PadToken)
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "config.json")); err == nil {
		var cfg struct {
			EOSTokenID *int `json:"eos_token_id"`
			BOSTokenID *int `json:"bos_token_id"`
			PadTokenID *int `json:"pad_token_id"`
		}
		if err := json.Unmarshal(data, &cfg); err == nil {
			if cfg.EOSTokenID != nil {
				s.EOSID = *cfg.EOSTokenID
			}
			if cfg.BOSTokenID != nil {
				s.BOSID = *cfg.BOSTokenID
			}
			if cfg.PadTokenID != nil {
				s.PadID = *cfg.PadTokenID
			}
		}
	}

	return s
}

// extractTokenString pulls the token text out of a JSON value that can be
// either a plain string or an added-token object with a content field.
func extractTokenString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case map[string]any:
		if content, ok := v["content"].(string); ok {
			return content
		}
	}
	return ""
}
