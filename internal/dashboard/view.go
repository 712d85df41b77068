// Package dashboard derives the admin and client-facing views from the raw
// client and update collections. Every function here is pure.
package dashboard

import (
	"sort"
	"time"

	"progress/api/internal/store"
)

// Epoch is the last-update date of a client that has no updates, so such
// clients lead the priority list.
var Epoch = time.Unix(0, 0).UTC()

type View struct {
	InProgress []store.Client
	Priority   []store.Client
	Completed  []store.Client
}

// Derive splits clients by completion. InProgress is ordered by start date,
// newest first. Priority holds the same clients ordered by their most recent
// update, oldest first; ties keep InProgress order.
func Derive(clients []store.Client, updates []store.Update) View {
	view := View{
		InProgress: make([]store.Client, 0, len(clients)),
		Completed:  make([]store.Client, 0),
	}
	for _, client := range clients {
		if client.Completed {
			view.Completed = append(view.Completed, client)
		} else {
			view.InProgress = append(view.InProgress, client)
		}
	}
	sort.SliceStable(view.InProgress, func(i, j int) bool {
		return view.InProgress[i].Date.After(view.InProgress[j].Date)
	})

	last := lastUpdateByClient(updates)
	lastOf := func(id string) time.Time {
		if at, ok := last[id]; ok {
			return at
		}
		return Epoch
	}
	view.Priority = append(make([]store.Client, 0, len(view.InProgress)), view.InProgress...)
	sort.SliceStable(view.Priority, func(i, j int) bool {
		return lastOf(view.Priority[i].ID).Before(lastOf(view.Priority[j].ID))
	})
	return view
}

// LastUpdateDate returns the date of the client's most recent update, or
// Epoch when it has none.
func LastUpdateDate(clientID string, updates []store.Update) time.Time {
	if at, ok := lastUpdateByClient(updates)[clientID]; ok {
		return at
	}
	return Epoch
}

func lastUpdateByClient(updates []store.Update) map[string]time.Time {
	last := make(map[string]time.Time, len(updates))
	for _, update := range updates {
		if at, ok := last[update.ClientID]; !ok || update.Date.After(at) {
			last[update.ClientID] = update.Date
		}
	}
	return last
}
