package extract

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed filters.yaml
var defaultFilters []byte

// Filter selects OSM elements by source kind and tag key.
type Filter struct {
	From  []string `yaml:"from"`
	Where []string `yaml:"where"`
}

// Filters maps a category to its filter. All is derived from the others
// when not given explicitly.
type Filters map[Category]Filter

// DefaultFilters returns the built in filter set.
func DefaultFilters() Filters {
	f, err := ParseFilters(defaultFilters)
	if err != nil {
		panic(err)
	}
	return f
}

func ParseFilters(b []byte) (Filters, error) {
	var f Filters
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse filters: %w", err)
	}
	for c, filter := range f {
		if len(filter.Where) == 0 {
			return nil, fmt.Errorf("filter %s selects no tags", c)
		}
		for _, from := range filter.From {
			if _, ok := elementKinds[from]; !ok {
				return nil, fmt.Errorf("filter %s: unknown source %q", c, from)
			}
		}
	}
	return f, nil
}

var elementKinds = map[string]string{
	"nodes":     "node",
	"ways_poly": "way",
	"ways_line": "way",
}

// Lookup returns the filter for c, merging every filter for All.
func (f Filters) Lookup(c Category) (Filter, bool) {
	if filter, ok := f[c]; ok || c != All {
		return filter, ok
	}
	var merged Filter
	seen := map[string]bool{}
	cats := make([]string, 0, len(f))
	for k := range f {
		cats = append(cats, string(k))
	}
	sort.Strings(cats)
	for _, k := range cats {
		for _, from := range f[Category(k)].From {
			if !seen["from:"+from] {
				seen["from:"+from] = true
				merged.From = append(merged.From, from)
			}
		}
		for _, tag := range f[Category(k)].Where {
			if !seen["tag:"+tag] {
				seen["tag:"+tag] = true
				merged.Where = append(merged.Where, tag)
			}
		}
	}
	return merged, len(merged.Where) > 0
}

// statements renders the Overpass QL union members selecting filter
// within bbox, written as "south,west,north,east".
func (filter Filter) statements(bbox string) string {
	var sb strings.Builder
	kinds := map[string]bool{}
	for _, from := range filter.From {
		kind := elementKinds[from]
		if kinds[kind] {
			continue
		}
		kinds[kind] = true
		for _, tag := range filter.Where {
			fmt.Fprintf(&sb, "  %s[%q](%s);\n", kind, tag, bbox)
		}
	}
	return sb.String()
}
