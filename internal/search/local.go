package search

import (
	"strings"
	"unicode"
)

// Local matches themes in process. It is always healthy.
type Local struct {
	themes []string
}

func NewLocal(themes []string) *Local {
	return &Local{themes: append([]string(nil), themes...)}
}

func (l *Local) Healthy() bool { return true }

// Search returns themes containing the query, ignoring case and treating
// hiragana and katakana as equal. An empty query lists themes in order.
func (l *Local) Search(q Query) ([]string, int, error) {
	needle := fold(strings.TrimSpace(q.Text))
	limit := q.limit()

	matches := make([]string, 0, limit)
	total := 0
	for _, theme := range l.themes {
		if needle != "" && !strings.Contains(fold(theme), needle) {
			continue
		}
		total++
		if len(matches) < limit {
			matches = append(matches, theme)
		}
	}
	return matches, total, nil
}

// fold lowercases and maps katakana to hiragana.
func fold(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - ('ァ' - 'ぁ')
		}
		return unicode.ToLower(r)
	}, s)
}
