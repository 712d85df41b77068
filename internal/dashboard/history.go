package dashboard

import (
	"sort"

	"progress/api/internal/store"
)

// NumberedUpdate is an update with its 1-based position in the client's
// history.
type NumberedUpdate struct {
	Index int
	store.Update
}

type History struct {
	All  []NumberedUpdate
	New  []NumberedUpdate
	Past []NumberedUpdate
}

// ClientHistory numbers the client's updates by date, oldest first, and
// splits them into unseen (New) and seen (Past).
func ClientHistory(clientID string, updates []store.Update) History {
	own := make([]store.Update, 0)
	for _, update := range updates {
		if update.ClientID == clientID {
			own = append(own, update)
		}
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].Date.Before(own[j].Date) })

	history := History{
		All:  make([]NumberedUpdate, 0, len(own)),
		New:  make([]NumberedUpdate, 0),
		Past: make([]NumberedUpdate, 0),
	}
	for i, update := range own {
		numbered := NumberedUpdate{Index: i + 1, Update: update}
		history.All = append(history.All, numbered)
		if update.Completed {
			history.Past = append(history.Past, numbered)
		} else {
			history.New = append(history.New, numbered)
		}
	}
	return history
}
