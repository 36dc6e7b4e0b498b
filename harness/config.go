package harness

import (
	"fmt"
	"strconv"
	"strings"
)

// BatchMode selects how the evaluation batch size is determined.
type BatchMode int

const (
	// BatchFixed uses the configured size as-is.
	BatchFixed BatchMode = iota
	// BatchAuto probes for the largest feasible size at runtime.
	BatchAuto
)

// BatchSpec is an explicit batch-size configuration value. A fixed size
// carries the size; auto detection carries none.
type BatchSpec struct {
	Mode BatchMode
	Size int
}

// FixedBatch returns a BatchSpec with a fixed size.
func FixedBatch(n int) BatchSpec {
	return BatchSpec{Mode: BatchFixed, Size: n}
}

// AutoBatch returns a BatchSpec that requests runtime detection.
func AutoBatch() BatchSpec {
	return BatchSpec{Mode: BatchAuto}
}

// ParseBatchSpec parses a user-facing batch size value: "auto" or a
// positive integer.
func ParseBatchSpec(s string) (BatchSpec, error) {
	if strings.EqualFold(strings.TrimSpace(s), "auto") {
		return AutoBatch(), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return BatchSpec{}, fmt.Errorf("batch size must be a positive integer or \"auto\", got %q", s)
	}
	return FixedBatch(n), nil
}

func (b BatchSpec) String() string {
	if b.Mode == BatchAuto {
		return "auto"
	}
	return strconv.Itoa(b.Size)
}

// Config holds the adapter configuration.
type Config struct {
	Model             string
	Batch             BatchSpec
	MaxBatchSize      int
	MaxGenToks        int
	MaxLength         int
	DecoderStartToken int
	// AddSpecialTokens overrides the per-architecture default when set:
	// false for causal models, true for seq2seq models.
	AddSpecialTokens *bool
	Progress         bool
}

// ConfigOption is a functional option for Config.
type ConfigOption func(*Config)

// NewConfig creates a Config with default values and validates it. Invalid
// configuration is a programming error and panics at construction time.
func NewConfig(model string, opts ...ConfigOption) *Config {
	c := &Config{
		Model:        model,
		Batch:        FixedBatch(1),
		MaxBatchSize: 512,
		MaxGenToks:   256,
		MaxLength:    2048,
		Progress:     true,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		panic(err)
	}

	return c
}

func (c *Config) validate() error {
	if c.Batch.Mode == BatchFixed && c.Batch.Size < 1 {
		return fmt.Errorf("fixed batch size must be at least 1, got %d", c.Batch.Size)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1, got %d", c.MaxBatchSize)
	}
	if c.MaxGenToks < 1 {
		return fmt.Errorf("max_gen_toks must be at least 1, got %d", c.MaxGenToks)
	}
	if c.MaxLength <= c.MaxGenToks {
		return fmt.Errorf("max_length (%d) must exceed max_gen_toks (%d)", c.MaxLength, c.MaxGenToks)
	}
	return nil
}

// WithBatch sets the batch-size specification.
func WithBatch(b BatchSpec) ConfigOption {
	return func(c *Config) {
		c.Batch = b
	}
}

// WithMaxBatchSize caps the batch size considered by auto detection.
func WithMaxBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.MaxBatchSize = n
	}
}

// WithMaxGenToks sets the default cap on newly generated tokens.
func WithMaxGenToks(n int) ConfigOption {
	return func(c *Config) {
		c.MaxGenToks = n
	}
}

// WithMaxLength sets the model's maximum context length.
func WithMaxLength(n int) ConfigOption {
	return func(c *Config) {
		c.MaxLength = n
	}
}

// WithDecoderStartToken sets the token that seeds the decoder stream of a
// seq2seq model.
func WithDecoderStartToken(id int) ConfigOption {
	return func(c *Config) {
		c.DecoderStartToken = id
	}
}

// WithAddSpecialTokens overrides the architecture default for inserting
// special tokens during encoding.
func WithAddSpecialTokens(b bool) ConfigOption {
	return func(c *Config) {
		c.AddSpecialTokens = &b
	}
}

// WithProgress toggles the generation progress bar.
func WithProgress(b bool) ConfigOption {
	return func(c *Config) {
		c.Progress = b
	}
}
