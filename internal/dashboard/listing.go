package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"progress/api/internal/store"
)

const (
	ClientsPerPage = 9
	TeamPerPage    = 6
)

type Filter string

const (
	FilterAll        Filter = "all"
	FilterCompleted  Filter = "completed"
	FilterInProgress Filter = "in-progress"
)

// ParseFilter accepts the clients page filter values; empty means all.
func ParseFilter(raw string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterCompleted:
		return FilterCompleted, nil
	case FilterInProgress:
		return FilterInProgress, nil
	default:
		return "", fmt.Errorf("unknown filter %q", raw)
	}
}

// FilterClients keeps clients whose name contains term (case-insensitive)
// and whose status matches filter, ordered by name.
func FilterClients(clients []store.Client, term string, filter Filter) []store.Client {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]store.Client, 0, len(clients))
	for _, client := range clients {
		if term != "" && !strings.Contains(strings.ToLower(client.Name), term) {
			continue
		}
		switch filter {
		case FilterCompleted:
			if !client.Completed {
				continue
			}
		case FilterInProgress:
			if client.Completed {
				continue
			}
		}
		out = append(out, client)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// Paginate returns the 1-based page of items. Out-of-range pages are clamped
// and an empty list still has one (empty) page.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage <= 0 {
		perPage = len(items)
		if perPage == 0 {
			perPage = 1
		}
	}
	totalPages := (len(items) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	page = max(1, min(page, totalPages))

	start := (page - 1) * perPage
	end := min(start+perPage, len(items))
	result := make([]T, 0, end-start)
	result = append(result, items[start:end]...)
	return Page[T]{Items: result, Page: page, TotalPages: totalPages, Total: len(items)}
}
