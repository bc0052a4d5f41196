// Package search indexes display names so users can find accounts to follow.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"whispr-service/internal/client"
	"whispr-service/internal/model"
)

const profileMapping = `{
  "mappings": {
    "properties": {
      "number":       {"type": "keyword"},
      "display_name": {"type": "search_as_you_type"},
      "locked":       {"type": "boolean"}
    }
  }
}`

type Hit struct {
	Number      string `json:"number"`
	DisplayName string `json:"display_name"`
}

// Index is the profile search backend.
type Index interface {
	IndexProfile(ctx context.Context, profile *model.UserProfile) error
	// Search returns unlocked profiles whose display name matches query.
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

type profileDoc struct {
	Number      string `json:"number"`
	DisplayName string `json:"display_name"`
	Locked      bool   `json:"locked"`
}

type ESIndex struct {
	es    *client.ESClient
	index string
}

func NewESIndex(ctx context.Context, es *client.ESClient, index string) (*ESIndex, error) {
	if err := es.EnsureIndex(ctx, index, profileMapping); err != nil {
		return nil, fmt.Errorf("ensure profile index: %w", err)
	}
	return &ESIndex{es: es, index: index}, nil
}

func (e *ESIndex) IndexProfile(ctx context.Context, profile *model.UserProfile) error {
	return e.es.IndexDocument(ctx, e.index, profile.Number, profileDoc{
		Number:      profile.Number,
		DisplayName: profile.Name(),
		Locked:      profile.Locked,
	})
}

func (e *ESIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  query,
						"type":   "bool_prefix",
						"fields": []string{"display_name", "display_name._2gram", "display_name._3gram"},
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"locked": false},
				},
			},
		},
	}
	res, err := e.es.Search(ctx, e.index, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source profileDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := e.es.ParseResponse(res, &parsed); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{Number: h.Source.Number, DisplayName: h.Source.DisplayName})
	}
	return hits, nil
}

// MemoryIndex matches case-insensitive substrings, for tests and local runs.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]profileDoc
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]profileDoc)}
}

func (m *MemoryIndex) IndexProfile(ctx context.Context, profile *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[profile.Number] = profileDoc{Number: profile.Number, DisplayName: profile.Name(), Locked: profile.Locked}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	query = strings.ToLower(query)
	var hits []Hit
	for _, d := range m.docs {
		if !d.Locked && strings.Contains(strings.ToLower(d.DisplayName), query) {
			hits = append(hits, Hit{Number: d.Number, DisplayName: d.DisplayName})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DisplayName < hits[j].DisplayName })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
