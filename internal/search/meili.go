package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxThemes = "gridshare_themes"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	themes  []Theme
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client, configures the theme index and
// loads titles into it. An unreachable server is not an error: the client
// reports unhealthy until the background check sees it come up.
func NewMeili(url, apiKey string, titles []string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		themes: toThemes(titles),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func toThemes(titles []string) []Theme {
	themes := make([]Theme, 0, len(titles))
	for i, title := range titles {
		themes = append(themes, Theme{ID: "t" + strconv.Itoa(i), Title: title})
	}
	return themes
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxThemes,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxThemes, err)
	}

	index := m.client.Index(idxThemes)
	searchable := []string{"title"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxThemes, err)
	}
	if len(m.themes) > 0 {
		if _, err := index.AddDocuments(m.themes, nil); err != nil {
			log.Printf("search: index themes: %v", err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]string, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.Index(idxThemes).Search(q.Text, &meili.SearchRequest{
		Limit: int64(q.limit()),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	themes := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if title := decodeString(hit, "title"); title != "" {
			themes = append(themes, title)
		}
	}
	return themes, int(resp.EstimatedTotalHits), nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
