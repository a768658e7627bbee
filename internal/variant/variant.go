package variant

import (
	"fmt"
	"sort"
	"strings"
)

// Variant is one product flavour of the assessment. Variants share the
// orchestrator and differ only in the backend route prefix and the storage
// namespace their local state lives under.
type Variant struct {
	Name string

	// APIPrefix is prepended to every backend path.
	APIPrefix string

	// Namespace scopes every locally persisted key.
	Namespace string

	// Title is shown in the header bar.
	Title string
}

var registry = map[string]Variant{
	"clinic": {
		Name:      "clinic",
		APIPrefix: "/api",
		Namespace: "clinic",
		Title:     "Cognitive Assessment",
	},
	"research": {
		Name:      "research",
		APIPrefix: "/api/research",
		Namespace: "research",
		Title:     "Cognitive Assessment (Research)",
	},
}

// Default is the variant used when none is configured.
const Default = "clinic"

// Lookup returns the named variant.
func Lookup(name string) (Variant, error) {
	if name == "" {
		name = Default
	}
	v, ok := registry[strings.ToLower(name)]
	if !ok {
		return Variant{}, fmt.Errorf("unknown variant %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return v, nil
}

// Names lists the registered variant names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
