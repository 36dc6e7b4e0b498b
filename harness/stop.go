package harness

import (
	"fmt"
	"strings"
)

// stopTracker watches one stop string across every member of a generation
// batch. A member's done flag transitions false to true exactly once, when
// the stop string shows up in its decoded output, and is never reset.
type stopTracker struct {
	sequence  string
	lookback  int // token length of the stop string
	done      []bool
	tokenizer Tokenizer
}

func newStopTracker(sequence string, tok Tokenizer, batchSize int) (*stopTracker, error) {
	ids, err := tok.Encode(sequence, false)
	if err != nil {
		return nil, fmt.Errorf("encode stop sequence %q: %w", sequence, err)
	}
	lookback := len(ids)
	if lookback < 1 {
		lookback = 1
	}
	return &stopTracker{
		sequence:  sequence,
		lookback:  lookback,
		done:      make([]bool, batchSize),
		tokenizer: tok,
	}, nil
}

// observe checks the freshly generated suffix of each still-running member.
// Only the last lookback tokens are decoded, not the full completion.
// Returns true when every member has emitted the stop string.
func (t *stopTracker) observe(completions [][]int) (bool, error) {
	all := true
	for i, done := range t.done {
		if done {
			continue
		}
		toks := completions[i]
		if len(toks) > t.lookback {
			toks = toks[len(toks)-t.lookback:]
		}
		text, err := t.tokenizer.Decode(toks, false)
		if err != nil {
			return false, fmt.Errorf("decode lookback window: %w", err)
		}
		if strings.Contains(text, t.sequence) {
			t.done[i] = true
		} else {
			all = false
		}
	}
	return all, nil
}

// StopCriteria tracks a set of stop strings over one generation batch, one
// tracker per string.
type StopCriteria struct {
	trackers []*stopTracker
}

// NewStopCriteria builds trackers for each stop string over a batch of the
// given size. An empty stop list yields criteria that never fire.
func NewStopCriteria(stops []string, tok Tokenizer, batchSize int) (*StopCriteria, error) {
	c := &StopCriteria{trackers: make([]*stopTracker, 0, len(stops))}
	for _, s := range stops {
		t, err := newStopTracker(s, tok, batchSize)
		if err != nil {
			return nil, err
		}
		c.trackers = append(c.trackers, t)
	}
	return c, nil
}

// ShouldStop feeds the current completion tokens to every tracker and
// reports whether generation may halt. The batch halts only once every stop
// string has been seen by every member; a single satisfied stop string is
// not enough. This mirrors the upstream harness behaviour and is the
// conservative reading of multi-stop termination.
func (c *StopCriteria) ShouldStop(completions [][]int) (bool, error) {
	if len(c.trackers) == 0 {
		return false, nil
	}
	stop := true
	for _, t := range c.trackers {
		ok, err := t.observe(completions)
		if err != nil {
			return false, err
		}
		if !ok {
			stop = false
		}
	}
	return stop, nil
}

// CutAtStop returns the portion of text before the first occurrence of any
// stop string, with the stop string itself excluded. Text without any stop
// string is returned unchanged; that is the budget-exhausted case.
func CutAtStop(text string, stops []string) string {
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 {
			text = text[:i]
		}
	}
	return text
}
