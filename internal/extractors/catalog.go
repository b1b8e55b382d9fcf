package extractors

import (
	"sort"
	"strings"
)

type catalogEntry struct {
	name    string
	metrics []string
}

// Catalog lists the key metrics tracked for each signal source. Sources are
// matched case-insensitively and reported under their canonical name.
type Catalog struct {
	entries map[string]catalogEntry
}

func defaultKeyMetrics() map[string][]string {
	return map[string][]string{
		"EC2":    {"CPUUtilization", "MemoryUtilization", "DiskSpaceUtilization"},
		"RDS":    {"CPUUtilization", "FreeStorageSpace", "DatabaseConnections"},
		"Lambda": {"Duration", "Errors", "Throttles"},
		"S3":     {"BucketSizeBytes", "NumberOfObjects"},
	}
}

func catalogKey(source string) string {
	return strings.ToUpper(strings.TrimSpace(source))
}

// NewCatalog returns the default catalog with per-source overrides applied.
// An override replaces the source's list; an empty list removes the source.
func NewCatalog(overrides map[string][]string) Catalog {
	entries := make(map[string]catalogEntry)
	for source, list := range defaultKeyMetrics() {
		entries[catalogKey(source)] = catalogEntry{name: source, metrics: list}
	}
	for source, list := range overrides {
		key := catalogKey(source)
		if len(list) == 0 {
			delete(entries, key)
			continue
		}
		name := strings.TrimSpace(source)
		if existing, ok := entries[key]; ok {
			name = existing.name
		}
		entries[key] = catalogEntry{name: name, metrics: append([]string(nil), list...)}
	}
	return Catalog{entries: entries}
}

// KeyMetrics returns the key metrics of source and whether the source is known.
func (c Catalog) KeyMetrics(source string) ([]string, bool) {
	e, ok := c.entries[catalogKey(source)]
	return e.metrics, ok
}

// Canonical returns the catalogued spelling of source, e.g. "Lambda" for
// "lambda". Unknown sources are returned unchanged.
func (c Catalog) Canonical(source string) string {
	if e, ok := c.entries[catalogKey(source)]; ok {
		return e.name
	}
	return source
}

// Sources lists catalogued sources alphabetically.
func (c Catalog) Sources() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.name)
	}
	sort.Strings(out)
	return out
}
