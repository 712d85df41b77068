package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Postgres searches the clients table with ILIKE. It is the fallback when
// Meilisearch is down, and it is the source for reindexing.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Healthy is always true; without Postgres the API is down anyway.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int, error) {
	where, args := buildWhere(q)

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	args = append(args, q.limit(), max(q.Offset, 0))
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, company, description, completed, url
		FROM clients
		WHERE %s
		ORDER BY LOWER(name) ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search clients: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var description string
		if err := rows.Scan(&r.ID, &r.Name, &r.Company, &description, &r.Completed, &r.URL); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		r.Snippet = snippet(description, 160)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}

func buildWhere(q Query) (string, []any) {
	clauses := []string{"TRUE"}
	var args []any
	if text := strings.TrimSpace(q.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR company ILIKE $%d OR description ILIKE $%d)", n, n, n))
	}
	switch q.Status {
	case StatusCompleted:
		clauses = append(clauses, "completed = TRUE")
	case StatusInProgress:
		clauses = append(clauses, "completed = FALSE")
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(text string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(text)
}

func snippet(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

// LoadAllRecords reads every client for a full reindex.
func (p *Postgres) LoadAllRecords(ctx context.Context) ([]ClientRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, company, description, completed, url FROM clients`)
	if err != nil {
		return nil, fmt.Errorf("load clients for reindex: %w", err)
	}
	defer rows.Close()

	records := make([]ClientRecord, 0)
	for rows.Next() {
		var r ClientRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Company, &r.Description, &r.Completed, &r.URL); err != nil {
			return nil, fmt.Errorf("scan client record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client records: %w", err)
	}
	return records, nil
}
