package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/schollz/progressbar/v3"
)

// genFunc runs one full generation over an encoded batch and returns the
// newly generated token IDs per batch member. The two adapter variants
// plug their architecture-specific decoding loop in here.
type genFunc func(batch *EncodedBatch, maxTokens int, until []string, seed int64, sample bool) ([][]int, error)

// adapterCore carries the state shared by the causal and seq2seq adapters:
// config, tokenizer, generation cache, and the batch size discovered by
// auto detection. It is confined to a single evaluation run and a single
// logical thread of control.
type adapterCore struct {
	cfg            *Config
	tokenizer      Tokenizer
	cache          CacheHook
	addSpecial     bool
	batchSizeFound int // 0 until auto detection has run
}

func newAdapterCore(cfg *Config, tok Tokenizer, cache CacheHook, addSpecialDefault bool) adapterCore {
	addSpecial := addSpecialDefault
	if cfg.AddSpecialTokens != nil {
		addSpecial = *cfg.AddSpecialTokens
	}
	if cache == nil {
		cache = NopCache{}
	}
	return adapterCore{cfg: cfg, tokenizer: tok, cache: cache, addSpecial: addSpecial}
}

// EOSToken returns the tokenizer's end-of-sequence marker.
func (c *adapterCore) EOSToken() string {
	return c.tokenizer.EOSToken()
}

// encodeBatch tokenizes prompts into a fixed-width batch, left padded and
// left truncated to MaxLength-MaxGenToks so the context never encroaches
// into the space reserved for generation.
func (c *adapterCore) encodeBatch(prompts []string) (*EncodedBatch, error) {
	maxCtx := c.cfg.MaxLength - c.cfg.MaxGenToks

	encoded := make([][]int, len(prompts))
	width := 0
	for i, p := range prompts {
		ids, err := c.tokenizer.Encode(p, c.addSpecial)
		if err != nil {
			return nil, fmt.Errorf("encode prompt: %w", err)
		}
		if len(ids) > maxCtx {
			ids = ids[len(ids)-maxCtx:]
		}
		encoded[i] = ids
		if len(ids) > width {
			width = len(ids)
		}
	}

	pad := c.tokenizer.PadTokenID()
	inputIDs := make([][]int, len(prompts))
	mask := make([][]int, len(prompts))
	for i, ids := range encoded {
		row := make([]int, width)
		m := make([]int, width)
		offset := width - len(ids)
		for j := 0; j < offset; j++ {
			row[j] = pad
		}
		copy(row[offset:], ids)
		for j := offset; j < width; j++ {
			m[j] = 1
		}
		inputIDs[i] = row
		mask[i] = m
	}

	return &EncodedBatch{InputIDs: inputIDs, Mask: mask, Width: width}, nil
}

// probe attempts a single-token generation at the candidate batch size with
// a full-width context, the worst case the run can encounter.
func (c *adapterCore) probe(batchSize int, gen genFunc) error {
	width := c.cfg.MaxLength - c.cfg.MaxGenToks
	filler := c.tokenizer.EOSTokenID()

	inputIDs := make([][]int, batchSize)
	mask := make([][]int, batchSize)
	for i := range inputIDs {
		row := make([]int, width)
		m := make([]int, width)
		for j := range row {
			row[j] = filler
			m[j] = 1
		}
		inputIDs[i] = row
		mask[i] = m
	}

	_, err := gen(&EncodedBatch{InputIDs: inputIDs, Mask: mask, Width: width}, 1, nil, 0, false)
	return err
}

// resolveBatchSize returns the effective batch size for this call, running
// auto detection at most once per adapter lifetime.
func (c *adapterCore) resolveBatchSize(gen genFunc) int {
	if c.cfg.Batch.Mode == BatchFixed {
		return c.cfg.Batch.Size
	}
	if c.batchSizeFound == 0 {
		slog.Info("batch size set to auto, detecting largest feasible batch size")
		c.batchSizeFound = detectBatchSize(c.cfg.MaxBatchSize, func(n int) error {
			return c.probe(n, gen)
		})
		slog.Info("determined largest batch size", "batch_size", c.batchSizeFound)
	}
	return c.batchSizeFound
}

// generateUntil is the shared greedy-until flow: reorder by encoded prompt
// length, chunk, generate, truncate at stop strings, record in the cache,
// and restore the original request order.
func (c *adapterCore) generateUntil(requests []Request, task string, numGenerations int, gen genFunc) ([][]string, error) {
	if len(requests) == 0 {
		return [][]string{}, nil
	}
	if numGenerations < 1 {
		numGenerations = 1
	}
	sample := numGenerations > 1

	reorder := NewReorderer[Request, []string](requests, func(r Request) int {
		ids, err := c.tokenizer.Encode(r.Prompt, c.addSpecial)
		if err != nil {
			return len(r.Prompt)
		}
		return len(ids)
	})

	batchSize := c.resolveBatchSize(gen)
	if sample {
		// Sampled tasks generate numGenerations completions per request,
		// one request at a time.
		batchSize = 1
	}

	var bar *progressbar.ProgressBar
	if c.cfg.Progress {
		bar = progressbar.NewOptions(len(requests),
			progressbar.OptionSetDescription(fmt.Sprintf("Generating [%s]", task)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
	}

	results := make([][]string, 0, len(requests))
	for _, chunk := range Chunks(reorder.Reordered(), batchSize) {
		prompts := make([]string, len(chunk))
		for i, r := range chunk {
			prompts[i] = r.Prompt
		}

		// Generation arguments are uniform within a task; the chunk's first
		// request is authoritative, as in the upstream harness.
		args := chunk[0].Args
		until := append(append([]string{}, args.Until...), c.tokenizer.EOSToken())
		maxTokens := args.MaxLength
		if maxTokens == 0 {
			maxTokens = c.cfg.MaxGenToks
		}

		batch, err := c.encodeBatch(prompts)
		if err != nil {
			return nil, err
		}

		outputs := make([][][]int, 0, numGenerations)
		for g := 0; g < numGenerations; g++ {
			out, err := gen(batch, maxTokens, until, int64(g), sample)
			if err != nil {
				slog.Error("error occurred while processing generate_until requests",
					"task", task, "prompts", prompts, "until", until, "error", err)
				return nil, fmt.Errorf("generation failed: %w", err)
			}
			outputs = append(outputs, out)
		}

		for i, req := range chunk {
			completions := make([]string, 0, numGenerations)
			for _, out := range outputs {
				text, err := c.tokenizer.Decode(out[i], true)
				if err != nil {
					return nil, fmt.Errorf("decode completion: %w", err)
				}
				completions = append(completions, CutAtStop(text, until))
			}
			c.cache.AddPartial("generate_until", req.Prompt, until, completions)
			results = append(results, completions)
			if bar != nil {
				bar.Add(1)
			}
		}
	}
	if bar != nil {
		bar.Finish()
	}

	return reorder.Restore(results)
}

// CausalAdapter evaluates decoder-only models. Causal decoding echoes the
// prompt, so the generated continuation is the suffix past the prompt
// width.
type CausalAdapter struct {
	adapterCore
	runner ModelRunner
}

// NewCausalAdapter builds a causal adapter. Evaluating causal models with
// special tokens inserted is unsupported and rejected at construction.
func NewCausalAdapter(cfg *Config, runner ModelRunner, tok Tokenizer, cache CacheHook) (*CausalAdapter, error) {
	if cfg.AddSpecialTokens != nil && *cfg.AddSpecialTokens {
		return nil, errors.New("evaluating causal models with add_special_tokens=true is not supported")
	}
	return &CausalAdapter{
		adapterCore: newAdapterCore(cfg, tok, cache, false),
		runner:      runner,
	}, nil
}

// GenerateUntil generates a completion for every request, preserving input
// order and cardinality.
func (a *CausalAdapter) GenerateUntil(requests []Request, task string, numGenerations int) ([][]string, error) {
	return a.generateUntil(requests, task, numGenerations, a.generate)
}

// Close releases the underlying model runner.
func (a *CausalAdapter) Close() error {
	return a.runner.Close()
}

func (a *CausalAdapter) generate(batch *EncodedBatch, maxTokens int, until []string, seed int64, sample bool) ([][]int, error) {
	n := len(batch.InputIDs)

	inputIDs := cloneRows(batch.InputIDs)
	mask := cloneRows(batch.Mask)
	completions := make([][]int, n)
	eosHit := make([]bool, n)
	eos := a.tokenizer.EOSTokenID()

	var criteria *StopCriteria
	if len(until) > 0 {
		var err error
		criteria, err = NewStopCriteria(until, a.tokenizer, n)
		if err != nil {
			return nil, err
		}
	}

	var rng *rand.Rand
	if sample {
		rng = rand.New(rand.NewSource(seed))
	}

	for step := 0; step < maxTokens; step++ {
		logits, err := a.runner.Step(inputIDs, mask)
		if err != nil {
			return nil, err
		}
		allEOS := true
		for i := range inputIDs {
			tok := pickToken(logits[i], rng)
			inputIDs[i] = append(inputIDs[i], tok)
			mask[i] = append(mask[i], 1)
			completions[i] = append(completions[i], tok)
			if tok == eos {
				eosHit[i] = true
			}
			if !eosHit[i] {
				allEOS = false
			}
		}
		if allEOS {
			break
		}
		if criteria != nil {
			stop, err := criteria.ShouldStop(completions)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
	}

	return completions, nil
}

// Seq2SeqAdapter evaluates encoder-decoder models. The decoder output does
// not include the source, so it is used as-is.
type Seq2SeqAdapter struct {
	adapterCore
	runner Seq2SeqRunner
}

// NewSeq2SeqAdapter builds a seq2seq adapter. Special tokens are inserted
// during encoding by default, matching how these models are trained.
func NewSeq2SeqAdapter(cfg *Config, runner Seq2SeqRunner, tok Tokenizer, cache CacheHook) (*Seq2SeqAdapter, error) {
	return &Seq2SeqAdapter{
		adapterCore: newAdapterCore(cfg, tok, cache, true),
		runner:      runner,
	}, nil
}

// GenerateUntil generates a completion for every request, preserving input
// order and cardinality.
func (a *Seq2SeqAdapter) GenerateUntil(requests []Request, task string, numGenerations int) ([][]string, error) {
	return a.generateUntil(requests, task, numGenerations, a.generate)
}

// Close releases the underlying model runner.
func (a *Seq2SeqAdapter) Close() error {
	return a.runner.Close()
}

func (a *Seq2SeqAdapter) generate(batch *EncodedBatch, maxTokens int, until []string, seed int64, sample bool) ([][]int, error) {
	n := len(batch.InputIDs)

	decoder := make([][]int, n)
	for i := range decoder {
		decoder[i] = []int{a.cfg.DecoderStartToken}
	}
	completions := make([][]int, n)
	eosHit := make([]bool, n)
	eos := a.tokenizer.EOSTokenID()

	var criteria *StopCriteria
	if len(until) > 0 {
		var err error
		criteria, err = NewStopCriteria(until, a.tokenizer, n)
		if err != nil {
			return nil, err
		}
	}

	var rng *rand.Rand
	if sample {
		rng = rand.New(rand.NewSource(seed))
	}

	for step := 0; step < maxTokens; step++ {
		logits, err := a.runner.Step(batch.InputIDs, batch.Mask, decoder)
		if err != nil {
			return nil, err
		}
		allEOS := true
		for i := range decoder {
			tok := pickToken(logits[i], rng)
			decoder[i] = append(decoder[i], tok)
			completions[i] = append(completions[i], tok)
			if tok == eos {
				eosHit[i] = true
			}
			if !eosHit[i] {
				allEOS = false
			}
		}
		if allEOS {
			break
		}
		if criteria != nil {
			stop, err := criteria.ShouldStop(completions)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
	}

	return completions, nil
}

func cloneRows(rows [][]int) [][]int {
	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = append(make([]int, 0, len(r)+16), r...)
	}
	return out
}
