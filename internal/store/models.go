package store

import "time"

// Collection names used for change notifications.
const (
	CollectionClients = "clients"
	CollectionUpdates = "updates"
	CollectionUsers   = "users"
)

// SecurityCodeDocument is the id of the access row holding the shared
// sign-in/sign-up security code.
const SecurityCodeDocument = "loginPassword"

type Client struct {
	ID             string
	Name           string
	Company        string
	Description    string
	Date           time.Time
	CompletionDate time.Time
	Completed      bool
	URL            string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClientPatch is a sparse set of client fields. Nil fields are left untouched.
// Completed is deliberately absent: completion goes through MarkClientComplete.
type ClientPatch struct {
	Name           *string
	Company        *string
	Description    *string
	Date           *time.Time
	CompletionDate *time.Time
}

func (p ClientPatch) Empty() bool {
	return p.Name == nil && p.Company == nil && p.Description == nil && p.Date == nil && p.CompletionDate == nil
}

type Update struct {
	ID          string
	ClientID    string
	Title       string
	Description string
	FileURL     string
	Date        time.Time
	Completed   bool
	Comments    []string
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Position     string
	ProfileImage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfilePatch merges into a user's profile. Nil fields are left untouched.
type ProfilePatch struct {
	Name         *string
	Position     *string
	ProfileImage *string
}
