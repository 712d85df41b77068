// Package search finds clients by name, company or description. Meilisearch
// answers when it is reachable; Postgres answers otherwise.
package search

import (
	"context"

	"progress/api/internal/store"
)

type Status string

const (
	StatusAny        Status = ""
	StatusCompleted  Status = "completed"
	StatusInProgress Status = "in-progress"
)

type Query struct {
	Text   string
	Status Status
	Limit  int
	Offset int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

type Result struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Company   string `json:"company"`
	Snippet   string `json:"snippet"`
	Completed bool   `json:"completed"`
	URL       string `json:"url"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher is one search backend.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ClientRecord is the document stored in the client index.
type ClientRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	URL         string `json:"url"`
}

func RecordFromClient(client store.Client) ClientRecord {
	return ClientRecord{
		ID:          client.ID,
		Name:        client.Name,
		Company:     client.Company,
		Description: client.Description,
		Completed:   client.Completed,
		URL:         client.URL,
	}
}

type Indexer interface {
	IndexClients(records []ClientRecord) error
	DeleteClient(id string) error
	Healthy() bool
}
