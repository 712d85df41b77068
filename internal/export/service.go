package export

import (
	"context"
	"fmt"
	"time"

	"progress/api/internal/dashboard"
	"progress/api/internal/store"
)

type DataStore interface {
	GetClient(ctx context.Context, clientID string) (store.Client, error)
	ListClientUpdates(ctx context.Context, clientID string) ([]store.Update, error)
}

// converter turns rendered HTML into a downloadable file.
type converter func(ctx context.Context, html, title string) (*Result, error)

type Service struct {
	store      DataStore
	now        func() time.Time
	converters map[Format]converter
}

func NewService(store DataStore) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		converters: map[Format]converter{
			FormatPDF:  exportPDF,
			FormatDOCX: exportDOCX,
			FormatHTML: htmlResult,
		},
	}
}

// BuildReport loads the client and its numbered update history.
func (s *Service) BuildReport(ctx context.Context, clientID string) (Report, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return Report{}, fmt.Errorf("get client: %w", err)
	}
	updates, err := s.store.ListClientUpdates(ctx, clientID)
	if err != nil {
		return Report{}, fmt.Errorf("list updates: %w", err)
	}
	return NewReport(client, dashboard.ClientHistory(clientID, updates), s.now()), nil
}

func NewReport(client store.Client, history dashboard.History, generatedAt time.Time) Report {
	return Report{
		ClientID:       client.ID,
		Name:           client.Name,
		Company:        client.Company,
		Description:    client.Description,
		Completed:      client.Completed,
		StartDate:      client.Date,
		CompletionDate: client.CompletionDate,
		NewUpdates:     reportUpdates(history.New),
		PastUpdates:    reportUpdates(history.Past),
		GeneratedAt:    generatedAt,
	}
}

func reportUpdates(items []dashboard.NumberedUpdate) []ReportUpdate {
	out := make([]ReportUpdate, 0, len(items))
	for _, item := range items {
		out = append(out, ReportUpdate{
			ID:          item.ID,
			Index:       item.Index,
			Title:       item.Title,
			Description: item.Description,
			Date:        item.Date,
			ImageURL:    item.FileURL,
			Seen:        item.Completed,
			Comments:    item.Comments,
		})
	}
	return out
}

func (s *Service) Export(ctx context.Context, clientID string, format Format) (*Result, error) {
	convert, ok := s.converters[format]
	if !ok {
		return nil, ErrUnsupportedFormat
	}
	report, err := s.BuildReport(ctx, clientID)
	if err != nil {
		return nil, err
	}
	html, err := RenderReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return convert(ctx, html, report.Name+" progress")
}

func htmlResult(_ context.Context, html, title string) (*Result, error) {
	return &Result{
		Data:     []byte(html),
		Filename: sanitizeFilename(title) + ".html",
		MimeType: "text/html; charset=utf-8",
	}, nil
}

// sanitizeFilename keeps ASCII letters, digits, hyphens and underscores;
// spaces become hyphens.
func sanitizeFilename(title string) string {
	buf := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			buf = append(buf, r)
		case r == ' ':
			buf = append(buf, '-')
		}
	}
	if len(buf) > 60 {
		buf = buf[:60]
	}
	if len(buf) == 0 {
		return "progress-report"
	}
	return string(buf)
}
