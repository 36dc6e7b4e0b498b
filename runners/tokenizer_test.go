package runners

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadSpecialTokens(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tokenizer_config.json", `{
		"eos_token": "</s>",
		"bos_token": {"content": "<s>", "lstrip": false},
		"pad_token": "<pad>"
	}`)
	writeFile(t, dir, "config.json", `{
		"eos_token_id": 2,
		"bos_token_id": 1,
		"pad_token_id": 0
	}`)

	s := loadSpecialTokens(dir)
	if s.EOSToken != "</s>" {
		t.Errorf("EOSToken = %q, want </s>", s.EOSToken)
	}
	if s.BOSToken != "<s>" {
		t.Errorf("BOSToken = %q, want <s>", s.BOSToken)
	}
	if s.PadToken != "<pad>" {
		t.Errorf("PadToken = %q, want <pad>", s.PadToken)
	}
	if s.EOSID != 2 || s.BOSID != 1 || s.PadID != 0 {
		t.Errorf("IDs = (%d, %d, %d), want (2, 1, 0)", s.EOSID, s.BOSID, s.PadID)
	}
}

func TestLoadSpecialTokensMissingFiles(t *testing.T) {
	s := loadSpecialTokens(t.TempDir())
	if s.EOSID != -1 || s.BOSID != -1 || s.PadID != -1 {
		t.Errorf("expected unresolved IDs, got %+v", s)
	}
	if s.EOSToken != "" {
		t.Errorf("expected empty EOS token, got %q", s.EOSToken)
	}
}

func TestExtractTokenString(t *testing.T) {
	if got := extractTokenString("</s>"); got != "</s>" {
		t.Errorf("string form: got %q", got)
	}
	if got := extractTokenString(map[string]any{"content": "<eos>"}); got != "<eos>" {
		t.Errorf("object form: got %q", got)
	}
	if got := extractTokenString(nil); got != "" {
		t.Errorf("nil: got %q", got)
	}
	if got := extractTokenString(42.0); got != "" {
		t.Errorf("number: got %q", got)
	}
}
