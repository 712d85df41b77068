package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"progress/api/internal/blob"
	"progress/api/internal/config"
	"progress/api/internal/livequery"
	"progress/api/internal/store"
)

const (
	testBaseURL      = "https://progress.example.com"
	testAdminEmail   = "owner@example.com"
	testAdminPass    = "correct-horse"
	testSecurityCode = "open-sesame"
)

// fakeStore is an in-memory DataStore and SessionStore.
type fakeStore struct {
	mu             sync.Mutex
	clients        map[string]store.Client
	updates        map[string]store.Update
	users          map[string]store.User
	codes          map[string]string
	refresh        map[string]string
	revoked        map[string]time.Time
	resets         map[string]string
	patchCalls     int
	seenWrites     int
	completeWrites int
	pingErr        error
	listClientsErr error
	clock          time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients: map[string]store.Client{},
		updates: map[string]store.Update{},
		users:   map[string]store.User{},
		codes:   map[string]string{store.SecurityCodeDocument: testSecurityCode},
		refresh: map[string]string{},
		revoked: map[string]time.Time{},
		resets:  map[string]string{},
		clock:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeStore) ListClients(context.Context) ([]store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listClientsErr != nil {
		return nil, f.listClientsErr
	}
	items := make([]store.Client, 0, len(f.clients))
	for _, c := range f.clients {
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (f *fakeStore) GetClient(_ context.Context, id string) (store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return store.Client{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) InsertClient(_ context.Context, item store.Client) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.clients[item.ID]; taken {
		return false, nil
	}
	item.Completed = false
	item.CreatedAt = f.tick()
	item.UpdatedAt = item.CreatedAt
	f.clients[item.ID] = item
	return true, nil
}

func (f *fakeStore) PatchClient(_ context.Context, id string, patch store.ClientPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.patchCalls++
	f.clients[id] = applyPatch(c, patch)
	return nil
}

func (f *fakeStore) MarkClientComplete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if c.Completed {
		return false, nil
	}
	f.completeWrites++
	c.Completed = true
	f.clients[id] = c
	return true, nil
}

func (f *fakeStore) DeleteClient(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.clients, id)
	return nil
}

func (f *fakeStore) sortedUpdates(keep func(store.Update) bool) []store.Update {
	items := make([]store.Update, 0, len(f.updates))
	for _, u := range f.updates {
		if keep(u) {
			u.Comments = append([]string{}, u.Comments...)
			items = append(items, u)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Date.Before(items[j].Date) })
	return items
}

func (f *fakeStore) ListUpdates(context.Context) ([]store.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedUpdates(func(store.Update) bool { return true }), nil
}

func (f *fakeStore) ListClientUpdates(_ context.Context, clientID string) ([]store.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedUpdates(func(u store.Update) bool { return u.ClientID == clientID }), nil
}

func (f *fakeStore) GetUpdate(_ context.Context, id string) (store.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.updates[id]
	if !ok {
		return store.Update{}, sql.ErrNoRows
	}
	u.Comments = append([]string{}, u.Comments...)
	return u, nil
}

func (f *fakeStore) InsertUpdate(_ context.Context, item store.Update) (store.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.Date = f.tick()
	item.Completed = false
	item.Comments = []string{}
	f.updates[item.ID] = item
	return item, nil
}

func (f *fakeStore) MarkUpdateSeen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.updates[id]
	if !ok || u.Completed {
		return false, nil
	}
	f.seenWrites++
	u.Completed = true
	f.updates[id] = u
	return true, nil
}

func (f *fakeStore) AppendComment(_ context.Context, id, text string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.updates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u.Comments = append(u.Comments, text)
	f.updates[id] = u
	return append([]string{}, u.Comments...), nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.User, 0, len(f.users))
	for _, u := range f.users {
		items = append(items, u)
	}
	sort.Slice(items, func(i, j int) bool {
		if strings.ToLower(items[i].Name) != strings.ToLower(items[j].Name) {
			return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
		}
		return items[i].Email < items[j].Email
	})
	return items, nil
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, id string, patch store.ProfilePatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Position != nil {
		u.Position = *patch.Position
	}
	if patch.ProfileImage != nil {
		u.ProfileImage = *patch.ProfileImage
	}
	f.users[id] = u
	return nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) GetAccessCode(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.codes[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return code, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[hash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[hash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, hash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = exp
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.revoked[jti]
	return ok, nil
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

// addUser registers an account with a cheap bcrypt hash.
func (f *fakeStore) addUser(id, email, password, name string) store.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	user := store.User{ID: id, Email: email, PasswordHash: string(hash), Name: name}
	f.mu.Lock()
	f.users[id] = user
	f.mu.Unlock()
	return user
}

// recordingBus is a Hub that remembers every publish.
type recordingBus struct {
	*livequery.Hub
	mu        sync.Mutex
	published []string
}

func newRecordingBus() *recordingBus {
	return &recordingBus{Hub: livequery.NewHub()}
}

func (b *recordingBus) Publish(ctx context.Context, collection string) error {
	b.mu.Lock()
	b.published = append(b.published, collection)
	b.mu.Unlock()
	return b.Hub.Publish(ctx, collection)
}

func (b *recordingBus) count(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.published {
		if c == collection {
			n++
		}
	}
	return n
}

type fakeMailer struct {
	configured bool
	sent       []string
}

func (m *fakeMailer) IsConfigured() bool { return m.configured }

func (m *fakeMailer) SendPasswordReset(to, _, resetURL string) error {
	m.sent = append(m.sent, to+" "+resetURL)
	return nil
}

type testEnv struct {
	svc   *Service
	store *fakeStore
	bus   *recordingBus
	blobs *blob.Memory
}

func newTestEnv() *testEnv {
	fs := newFakeStore()
	bus := newRecordingBus()
	blobs := blob.NewMemory(testBaseURL)
	svc := New(config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		PublicBaseURL: testBaseURL,
		AllowedEmails: []string{testAdminEmail},
	}, Deps{Store: fs, Bus: bus, Blobs: blobs})
	return &testEnv{svc: svc, store: fs, bus: bus, blobs: blobs}
}

func (e *testEnv) acmeCorp() store.Client {
	client, err := e.svc.CreateClient(context.Background(), ClientInput{
		Name:           "Acme Corp",
		Company:        "Acme",
		Description:    "Website rebuild",
		Date:           "2024-01-15",
		CompletionDate: "2024-06-30",
	})
	if err != nil {
		panic(err)
	}
	return client
}
