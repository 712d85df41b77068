package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

type fakeSearcher struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: true, results: []Result{{ID: "acme-corp"}}}
	fallback := &fakeSearcher{healthy: true}
	svc := &Service{primary: primary, fallback: fallback}

	resp := svc.Search(context.Background(), Query{Text: "acme"})
	if resp.Engine != "meilisearch" || len(resp.Results) != 1 || fallback.calls != 0 {
		t.Fatalf("unexpected response %+v (fallback calls %d)", resp, fallback.calls)
	}
}

func TestSearchFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		primary Searcher
	}{
		{"no primary", nil},
		{"unhealthy primary", &fakeSearcher{healthy: false}},
		{"failing primary", &fakeSearcher{healthy: true, err: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeSearcher{healthy: true, results: []Result{{ID: "globex"}}}
			svc := &Service{primary: tt.primary, fallback: fallback}

			resp := svc.Search(context.Background(), Query{Text: "glo"})
			if resp.Engine != "postgres" || len(resp.Results) != 1 || resp.Results[0].ID != "globex" {
				t.Fatalf("unexpected response %+v", resp)
			}
		})
	}
}

func TestSearchFallbackErrorReturnsEmpty(t *testing.T) {
	svc := &Service{fallback: &fakeSearcher{healthy: true, err: errors.New("down")}}
	resp := svc.Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestBuildWhere(t *testing.T) {
	where, args := buildWhere(Query{Text: " 50%_off ", Status: StatusInProgress})
	want := `TRUE AND (name ILIKE $1 OR company ILIKE $1 OR description ILIKE $1) AND completed = FALSE`
	if where != want {
		t.Fatalf("where = %q\nwant    %q", where, want)
	}
	if len(args) != 1 || args[0] != `%50\%\_off%` {
		t.Fatalf("unexpected args %v", args)
	}

	where, args = buildWhere(Query{})
	if where != "TRUE" || len(args) != 0 {
		t.Fatalf("empty query: where=%q args=%v", where, args)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("  short  ", 10); got != "short" {
		t.Fatalf("snippet = %q", got)
	}
	if got := snippet("abcdefghij", 4); got != "abcd…" {
		t.Fatalf("snippet = %q", got)
	}
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	hit := meili.Hit{
		"id":          raw("acme-corp"),
		"name":        raw("Acme Corp"),
		"company":     raw("Acme"),
		"description": raw("Site rebuild"),
		"completed":   raw(true),
		"url":         raw("http://localhost:8787/client/acme-corp"),
		"_formatted":  raw(map[string]any{"description": "<mark>Site</mark> rebuild", "completed": "true"}),
	}

	got := hitToResult(hit)
	if got.ID != "acme-corp" || got.Name != "Acme Corp" || !got.Completed {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Snippet != "<mark>Site</mark> rebuild" {
		t.Fatalf("expected highlighted snippet, got %q", got.Snippet)
	}
}

func TestStatusFilter(t *testing.T) {
	if statusFilter(StatusCompleted) != "completed = true" || statusFilter(StatusInProgress) != "completed = false" || statusFilter(StatusAny) != "" {
		t.Fatal("unexpected meilisearch filters")
	}
}
