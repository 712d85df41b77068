package app

import (
	"testing"
	"time"

	"progress/api/internal/export"
	"progress/api/internal/store"
)

func TestCalendarDatesIgnoreServerZone(t *testing.T) {
	behindUTC := time.FixedZone("UTC-5", -5*60*60)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).In(behindUTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC).In(behindUTC)

	payload := clientJSON(store.Client{ID: "acme-corp", Date: start, CompletionDate: end})
	if payload["date"] != "2024-01-01" || payload["completionDate"] != "2024-06-30" {
		t.Fatalf("clientJSON dates = %v / %v", payload["date"], payload["completionDate"])
	}

	report := reportJSON(export.Report{ClientID: "acme-corp", StartDate: start, CompletionDate: end})
	if report["date"] != "2024-01-01" || report["completionDate"] != "2024-06-30" {
		t.Fatalf("reportJSON dates = %v / %v", report["date"], report["completionDate"])
	}

	if got := formatDay(time.Time{}); got != "" {
		t.Fatalf("formatDay(zero) = %q", got)
	}
}
