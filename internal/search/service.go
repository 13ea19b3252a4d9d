package search

import (
	"log"
	"strings"
)

// Service is the facade that tries Meilisearch first and falls back to the local matcher.
type Service struct {
	meili *Meili
	local *Local
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, local *Local) *Service {
	return &Service{meili: meili, local: local}
}

// Search tries Meilisearch if healthy, otherwise falls back to the local matcher.
func (s *Service) Search(q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if s.meili != nil && s.meili.Healthy() && q.Text != "" {
		themes, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Themes: nonNil(themes), Total: total, Query: q.Text, Source: "meilisearch"}
		}
		log.Printf("search: meilisearch error, falling back to local: %v", err)
	}

	themes, total, err := s.local.Search(q)
	if err != nil {
		log.Printf("search: local error: %v", err)
		return Response{Themes: []string{}, Total: 0, Query: q.Text, Source: "local"}
	}
	return Response{Themes: nonNil(themes), Total: total, Query: q.Text, Source: "local"}
}

// Close stops background work.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []string) []string {
	if r == nil {
		return []string{}
	}
	return r
}
