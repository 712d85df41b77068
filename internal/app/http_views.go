package app

import (
	"time"

	"progress/api/internal/dashboard"
	"progress/api/internal/export"
	"progress/api/internal/store"
)

// formatDay prints the calendar date in UTC, where dates are stored.
func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func clientJSON(client store.Client) map[string]any {
	return map[string]any{
		"id":             client.ID,
		"name":           client.Name,
		"company":        client.Company,
		"description":    client.Description,
		"date":           formatDay(client.Date),
		"completionDate": formatDay(client.CompletionDate),
		"completed":      client.Completed,
		"url":            client.URL,
	}
}

func clientsJSON(clients []store.Client) []map[string]any {
	out := make([]map[string]any, 0, len(clients))
	for _, client := range clients {
		out = append(out, clientJSON(client))
	}
	return out
}

func updateJSON(update store.Update) map[string]any {
	comments := update.Comments
	if comments == nil {
		comments = []string{}
	}
	return map[string]any{
		"id":          update.ID,
		"clientId":    update.ClientID,
		"title":       update.Title,
		"description": update.Description,
		"fileUrl":     update.FileURL,
		"date":        update.Date.UTC().Format(time.RFC3339),
		"completed":   update.Completed,
		"comments":    comments,
	}
}

func userJSON(user store.User) map[string]any {
	return map[string]any{
		"id":           user.ID,
		"email":        user.Email,
		"name":         user.Name,
		"position":     user.Position,
		"profileImage": user.ProfileImage,
	}
}

func dashboardJSON(view dashboard.View) map[string]any {
	return map[string]any{
		"type":       "dashboard",
		"inProgress": clientsJSON(view.InProgress),
		"priority":   clientsJSON(view.Priority),
		"completed":  clientsJSON(view.Completed),
	}
}

func reportUpdatesJSON(items []export.ReportUpdate) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		comments := item.Comments
		if comments == nil {
			comments = []string{}
		}
		out = append(out, map[string]any{
			"id":          item.ID,
			"index":       item.Index,
			"title":       item.Title,
			"description": item.Description,
			"date":        item.Date.UTC().Format(time.RFC3339),
			"fileUrl":     item.ImageURL,
			"completed":   item.Seen,
			"comments":    comments,
		})
	}
	return out
}

func reportJSON(report export.Report) map[string]any {
	return map[string]any{
		"type":           "client",
		"id":             report.ClientID,
		"name":           report.Name,
		"company":        report.Company,
		"description":    report.Description,
		"completed":      report.Completed,
		"status":         report.Status(),
		"date":           formatDay(report.StartDate),
		"completionDate": formatDay(report.CompletionDate),
		"newUpdates":     reportUpdatesJSON(report.NewUpdates),
		"pastUpdates":    reportUpdatesJSON(report.PastUpdates),
	}
}

func pageJSON(items []map[string]any, page, totalPages, total int) map[string]any {
	return map[string]any{
		"items":      items,
		"page":       page,
		"totalPages": totalPages,
		"total":      total,
	}
}
