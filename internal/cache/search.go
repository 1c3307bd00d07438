package cache

import (
	"github.com/sahilm/fuzzy"
)

// rankSearchResults orders rows so that fuzzy name matches come first, best
// score first; rows matched only through summary or description keep their
// database order after them.
func rankSearchResults(query string, results []SearchResult) []SearchResult {
	if query == "" || len(results) < 2 {
		return results
	}

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = StringValue(r.Name)
	}

	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return results
	}

	ranked := make([]SearchResult, 0, len(results))
	used := make([]bool, len(results))
	for _, m := range matches {
		ranked = append(ranked, results[m.Index])
		used[m.Index] = true
	}
	for i, r := range results {
		if !used[i] {
			ranked = append(ranked, r)
		}
	}
	return ranked
}
