package dashboard

import (
	"sort"
	"time"

	"progress/api/internal/store"
)

type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type PeriodCounts struct {
	Week  int `json:"week"`
	Month int `json:"month"`
	Year  int `json:"year"`
	Total int `json:"total"`
}

type Summary struct {
	InProgress    int          `json:"inProgress"`
	Completed     int          `json:"completed"`
	TotalClients  int          `json:"totalClients"`
	UpdatesPerDay []DayCount   `json:"updatesPerDay"`
	Projects      PeriodCounts `json:"projectsByPeriod"`
}

// Analytics counts projects and updates as of now. Calendar boundaries (day,
// month, year) are taken in now's location. A project counts towards Week
// when it started within the seven days up to and including now.
func Analytics(clients []store.Client, updates []store.Update, now time.Time) Summary {
	loc := now.Location()
	summary := Summary{
		TotalClients:  len(clients),
		UpdatesPerDay: make([]DayCount, 0),
	}

	weekAgo := now.AddDate(0, 0, -7)
	for _, client := range clients {
		if client.Completed {
			summary.Completed++
		} else {
			summary.InProgress++
		}

		started := client.Date.In(loc)
		summary.Projects.Total++
		if !started.Before(weekAgo) && !started.After(now) {
			summary.Projects.Week++
		}
		if started.Year() == now.Year() {
			summary.Projects.Year++
			if started.Month() == now.Month() {
				summary.Projects.Month++
			}
		}
	}

	perDay := map[string]int{}
	for _, update := range updates {
		perDay[update.Date.In(loc).Format(time.DateOnly)]++
	}
	for day, count := range perDay {
		summary.UpdatesPerDay = append(summary.UpdatesPerDay, DayCount{Day: day, Count: count})
	}
	sort.Slice(summary.UpdatesPerDay, func(i, j int) bool {
		return summary.UpdatesPerDay[i].Day < summary.UpdatesPerDay[j].Day
	})
	return summary
}
