package tasks

import (
	"fmt"
	"sort"
)

var builders = map[string]func(dataDir string) Task{
	"modar": func(dataDir string) Task { return NewModAr(dataDir) },
}

// Names returns the registered task names, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get builds the named task over the given data directory.
func Get(name, dataDir string) (Task, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown task %q (registered: %v)", name, Names())
	}
	return build(dataDir), nil
}
