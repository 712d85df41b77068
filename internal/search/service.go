package search

import (
	"context"
	"log"
)

type recordLoader interface {
	LoadAllRecords(ctx context.Context) ([]ClientRecord, error)
}

// Service tries the primary backend when healthy and falls back otherwise.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	records  recordLoader
}

// NewService wires Meilisearch (nil when not configured) in front of the
// Postgres fallback.
func NewService(m *Meili, pg *Postgres) *Service {
	s := &Service{fallback: pg, records: pg}
	if m != nil {
		s.primary = m
		s.indexer = m
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return Response{Results: []Result{}, Query: q.Text, Engine: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "postgres"}
}

// IndexClient pushes one client in the background.
func (s *Service) IndexClient(record ClientRecord) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.IndexClients([]ClientRecord{record}); err != nil {
			log.Printf("search: index client %s: %v", record.ID, err)
		}
	}()
}

func (s *Service) DeleteClient(id string) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.DeleteClient(id); err != nil {
			log.Printf("search: delete client %s: %v", id, err)
		}
	}()
}

// Reindex copies every client from Postgres into the index. It runs at
// startup and is a no-op without a healthy indexer.
func (s *Service) Reindex(ctx context.Context) {
	if s.indexer == nil || !s.indexer.Healthy() || s.records == nil {
		return
	}
	records, err := s.records.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.indexer.IndexClients(records); err != nil {
		log.Printf("search: reindex clients: %v", err)
		return
	}
	log.Printf("search: reindexed %d clients", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
