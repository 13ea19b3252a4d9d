// Package search suggests cell themes. Meilisearch serves queries when it is
// configured and healthy; an in-process matcher over the built-in theme list
// takes over otherwise.
package search

const defaultLimit = 20

// Theme is the record indexed in Meilisearch.
type Theme struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Query describes a suggestion request.
type Query struct {
	Text  string
	Limit int
}

// Response is the envelope returned by the themes endpoint.
type Response struct {
	Themes []string `json:"themes"`
	Total  int      `json:"total"`
	Query  string   `json:"query"`
	Source string   `json:"source"`
}

// Searcher can look up themes.
type Searcher interface {
	Search(q Query) ([]string, int, error)
	Healthy() bool
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}
