// Package mappers holds the built-in row mappers. Each one turns a raw row
// of a known column layout into a core.MappedCandidate, and registers itself
// by name at init so meter profiles can refer to it.
package mappers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/meterload/internal/core"
)

// Definition describes one registered mapper.
type Definition struct {
	Name        string
	Description string

	// Columns lists the expected columns in order.
	Columns []string

	// EndOnly mappers yield no end timestamp; the meter must be configured
	// for end-only data.
	EndOnly bool

	Map core.RowMapper
}

var (
	registry   = make(map[string]Definition)
	registryMu sync.RWMutex
)

// Register adds a mapper. Panics if the name is taken.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if def.Name == "" || def.Map == nil {
		panic("mappers: definition needs a name and a Map function")
	}
	if _, exists := registry[def.Name]; exists {
		panic(fmt.Sprintf("mapper already registered: %s", def.Name))
	}
	registry[def.Name] = def
}

// Get returns a mapper by name.
func Get(name string) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[name]
	return def, ok
}

// Lookup is Get with an error naming the known mappers.
func Lookup(name string) (Definition, error) {
	if def, ok := Get(name); ok {
		return def, nil
	}
	return Definition{}, fmt.Errorf("unknown mapper %q (known: %v)", name, Names())
}

// All returns every mapper sorted by name.
func All() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Definition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns the registered names, sorted.
func Names() []string {
	defs := All()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}
