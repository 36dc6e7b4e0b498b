package harness

import (
	"log/slog"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// CacheHook records completed generations keyed by prompt and stop set, so a
// run can be replayed or inspected later. The hook is append-only and best
// effort: a failed write is logged and dropped, never surfaced to the
// generation path.
type CacheHook interface {
	AddPartial(method, prompt string, until []string, completions []string)
}

// CacheKey digests a (prompt, stop-set) pair into a stable lookup key.
func CacheKey(prompt string, until []string) uint64 {
	h := xxhash.New()
	h.WriteString(prompt)
	for _, s := range until {
		h.Write([]byte{0})
		h.WriteString(s)
	}
	return h.Sum64()
}

// NopCache discards everything.
type NopCache struct{}

func (NopCache) AddPartial(method, prompt string, until []string, completions []string) {}

// MemoryCache is an in-memory CacheHook for tests and single-process runs.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[uint64][][]string
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[uint64][][]string)}
}

// AddPartial appends completions under the (prompt, until) key.
func (c *MemoryCache) AddPartial(method, prompt string, until []string, completions []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := CacheKey(prompt, until)
	c.entries[key] = append(c.entries[key], completions)
}

// Get returns every completion set recorded under the (prompt, until) key.
func (c *MemoryCache) Get(prompt string, until []string) [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[CacheKey(prompt, until)]
}

// Len returns the number of distinct keys recorded.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type cacheRecord struct {
	Method      string   `json:"method"`
	Key         uint64   `json:"key"`
	Prompt      string   `json:"prompt"`
	Until       []string `json:"until"`
	Completions []string `json:"completions"`
}

// JSONLCache appends cache records to a JSON Lines file.
type JSONLCache struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLCache opens path for appending.
func NewJSONLCache(path string) (*JSONLCache, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLCache{file: f, enc: json.NewEncoder(f)}, nil
}

// AddPartial writes one record. Encoding or write failures are logged and
// dropped.
func (c *JSONLCache) AddPartial(method, prompt string, until []string, completions []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := cacheRecord{
		Method:      method,
		Key:         CacheKey(prompt, until),
		Prompt:      prompt,
		Until:       until,
		Completions: completions,
	}
	if err := c.enc.Encode(rec); err != nil {
		slog.Warn("generation cache write failed", "error", err)
	}
}

// Close closes the underlying file.
func (c *JSONLCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
