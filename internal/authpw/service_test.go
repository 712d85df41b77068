package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"progress/api/internal/access"
	"progress/api/internal/store"
)

type resetEntry struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// mockUserStore is an in-memory UserStore keyed by lower-case email.
type mockUserStore struct {
	users  map[string]store.User
	resets map[string]resetEntry
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: map[string]store.User{}, resets: map[string]resetEntry{}}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) CreatePasswordReset(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = resetEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	reset, ok := m.resets[token]
	if !ok || reset.used || time.Now().After(reset.expiresAt) {
		return "", sql.ErrNoRows
	}
	return reset.userID, nil
}

func (m *mockUserStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	reset := m.resets[token]
	reset.used = true
	m.resets[token] = reset
	return nil
}

type staticCode string

func (c staticCode) Check(_ context.Context, code string) error {
	if code != string(c) {
		return access.ErrInvalidCode
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *mockUserStore) {
	t.Helper()
	users := newMockUserStore()
	svc := NewService(users, access.NewAllowList([]string{"owner@example.com"}), staticCode("letmein"))
	svc.cost = bcrypt.MinCost
	return svc, users
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService(t)

	created, err := svc.SignUp(ctx, Credentials{Email: "Owner@Example.com", Password: "password123", SecurityCode: "letmein"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if created.Email != "owner@example.com" || created.Name != "" {
		t.Fatalf("unexpected user: %+v", created)
	}
	if users.users[created.ID].PasswordHash == "password123" {
		t.Fatal("password stored in clear text")
	}

	signedIn, err := svc.SignIn(ctx, Credentials{Email: "owner@example.com", Password: "password123", SecurityCode: "letmein"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if signedIn.ID != created.ID {
		t.Fatalf("signed in as %s, want %s", signedIn.ID, created.ID)
	}

	if _, err := svc.SignUp(ctx, Credentials{Email: "owner@example.com", Password: "password123", SecurityCode: "letmein"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignInGatesInOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if _, err := svc.SignUp(ctx, Credentials{Email: "owner@example.com", Password: "password123", SecurityCode: "letmein"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	tests := []struct {
		name  string
		creds Credentials
		want  error
	}{
		{"not allow-listed", Credentials{Email: "stranger@example.com", Password: "password123", SecurityCode: "wrong"}, access.ErrEmailNotAllowed},
		{"wrong code", Credentials{Email: "owner@example.com", Password: "wrong-password", SecurityCode: "wrong"}, access.ErrInvalidCode},
		{"wrong password", Credentials{Email: "owner@example.com", Password: "wrong-password", SecurityCode: "letmein"}, ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignIn(ctx, tt.creds); !errors.Is(err, tt.want) {
				t.Fatalf("SignIn() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSignInAllowListedButUnregistered(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SignIn(context.Background(), Credentials{Email: "owner@example.com", Password: "password123", SecurityCode: "letmein"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignInRequiresAllFields(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SignIn(context.Background(), Credentials{Email: "owner@example.com"})

	var missing *MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldsError, got %v", err)
	}
	if len(missing.Fields) != 2 || missing.Fields[0] != "password" || missing.Fields[1] != "securityCode" {
		t.Fatalf("unexpected missing fields: %v", missing.Fields)
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SignUp(context.Background(), Credentials{Email: "owner@example.com", Password: "short", SecurityCode: "letmein"})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if _, err := svc.SignUp(ctx, Credentials{Email: "owner@example.com", Password: "password123", SecurityCode: "letmein"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	t.Run("unknown email yields no token", func(t *testing.T) {
		token, _, err := svc.RequestPasswordReset(ctx, "stranger@example.com")
		if err != nil || token != "" {
			t.Fatalf("RequestPasswordReset() = %q, %v", token, err)
		}
	})

	token, user, err := svc.RequestPasswordReset(ctx, "owner@example.com")
	if err != nil || token == "" {
		t.Fatalf("RequestPasswordReset() = %q, %v", token, err)
	}
	if user.Email != "owner@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	if err := svc.ResetPassword(ctx, token, "new-password-1"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if err := svc.ResetPassword(ctx, token, "new-password-2"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected used token to be rejected, got %v", err)
	}

	if _, err := svc.SignIn(ctx, Credentials{Email: "owner@example.com", Password: "new-password-1", SecurityCode: "letmein"}); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}
}
