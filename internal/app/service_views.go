package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"

	"progress/api/internal/dashboard"
	"progress/api/internal/export"
	"progress/api/internal/search"
	"progress/api/internal/store"
)

func (s *Service) loadAll(ctx context.Context) ([]store.Client, []store.Update, error) {
	clients, err := s.ListClients(ctx)
	if err != nil {
		return nil, nil, err
	}
	updates, err := s.ListUpdates(ctx)
	if err != nil {
		return nil, nil, err
	}
	return clients, updates, nil
}

func (s *Service) Dashboard(ctx context.Context) (dashboard.View, error) {
	clients, updates, err := s.loadAll(ctx)
	if err != nil {
		return dashboard.View{}, err
	}
	return dashboard.Derive(clients, updates), nil
}

func (s *Service) Analytics(ctx context.Context) (dashboard.Summary, error) {
	clients, updates, err := s.loadAll(ctx)
	if err != nil {
		return dashboard.Summary{}, err
	}
	// Calendar dates are stored at UTC midnight, so day boundaries are UTC too.
	return dashboard.Analytics(clients, updates, s.now().UTC()), nil
}

// ClientsPage filters by name and status and returns one page of nine.
func (s *Service) ClientsPage(ctx context.Context, term, filter string, page int) (dashboard.Page[store.Client], error) {
	parsed, err := dashboard.ParseFilter(filter)
	if err != nil {
		return dashboard.Page[store.Client]{}, validationError("Unknown filter.", map[string]string{"filter": "filter must be all, completed or in-progress"})
	}
	clients, err := s.ListClients(ctx)
	if err != nil {
		return dashboard.Page[store.Client]{}, err
	}
	return dashboard.Paginate(dashboard.FilterClients(clients, term, parsed), page, dashboard.ClientsPerPage), nil
}

func (s *Service) SearchClients(ctx context.Context, q search.Query) (search.Response, error) {
	switch q.Status {
	case search.StatusAny, search.StatusCompleted, search.StatusInProgress:
	default:
		return search.Response{}, validationError("Unknown status.", map[string]string{"status": "status must be completed or in-progress"})
	}
	q.Text = strings.TrimSpace(q.Text)
	if s.search == nil {
		return s.searchInMemory(ctx, q)
	}
	return s.search.Search(ctx, q), nil
}

// searchInMemory serves search when no search backend is wired, using the
// clients page filter.
func (s *Service) searchInMemory(ctx context.Context, q search.Query) (search.Response, error) {
	clients, err := s.ListClients(ctx)
	if err != nil {
		return search.Response{}, err
	}
	filter := dashboard.FilterAll
	switch q.Status {
	case search.StatusCompleted:
		filter = dashboard.FilterCompleted
	case search.StatusInProgress:
		filter = dashboard.FilterInProgress
	}
	matched := dashboard.FilterClients(clients, q.Text, filter)
	results := make([]search.Result, 0, len(matched))
	for _, client := range matched {
		results = append(results, search.Result{
			ID:        client.ID,
			Name:      client.Name,
			Company:   client.Company,
			Snippet:   client.Description,
			Completed: client.Completed,
			URL:       client.URL,
		})
	}
	total := len(results)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return search.Response{Results: results[start:end], Total: total, Query: q.Text, Engine: "memory"}, nil
}

// ClientReport is the public progress view of one client.
func (s *Service) ClientReport(ctx context.Context, clientID string) (export.Report, error) {
	report, err := s.exporter.BuildReport(ctx, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Report{}, notFound("Client")
	}
	if err != nil {
		log.Printf("build report %s: %v", clientID, err)
		return export.Report{}, serverError("load client progress")
	}
	return report, nil
}

// ClientPageHTML renders the public page with its seen and comment forms.
func (s *Service) ClientPageHTML(ctx context.Context, clientID string) (string, error) {
	report, err := s.ClientReport(ctx, clientID)
	if err != nil {
		return "", err
	}
	report.Interactive = true
	html, err := export.RenderReportHTML(report)
	if err != nil {
		log.Printf("render client page %s: %v", clientID, err)
		return "", serverError("render client page")
	}
	return html, nil
}

func (s *Service) ExportReport(ctx context.Context, clientID, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, validationError("Unsupported export format.", map[string]string{"format": "format must be pdf, docx or html"})
	}
	result, err := s.exporter.Export(ctx, clientID, parsed)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, notFound("Client")
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, CodeUnavailable, "Export is not available on this server.", map[string]any{"format": string(parsed)})
	}
	log.Printf("export %s as %s: %v", clientID, parsed, err)
	return nil, serverError("export report")
}
