package tasks

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"
)

// LoadJSONL reads a JSON Lines dataset file into Docs. Scalar fields are
// coerced to strings; nested objects and arrays are skipped, since tasks
// address fields by flat name.
func LoadJSONL(path string) ([]Doc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var docs []Doc
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to parse %s line %d: %w", path, line, err)
		}
		doc := make(Doc, len(fields))
		for k, v := range fields {
			switch x := v.(type) {
			case string:
				doc[k] = x
			case float64:
				doc[k] = strconv.FormatFloat(x, 'f', -1, 64)
			case bool:
				doc[k] = strconv.FormatBool(x)
			case nil:
				doc[k] = ""
			}
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return docs, nil
}
