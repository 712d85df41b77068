// Package authpw authenticates administrators by email and password behind
// the allow-list and security code gates.
package authpw

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"progress/api/internal/store"
	"progress/api/internal/util"
)

const (
	MinPasswordLength = 8
	resetTokenTTL     = time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// MissingFieldsError lists the required inputs that were blank.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

type EmailGate interface {
	Check(email string) error
}

type CodeGate interface {
	Check(ctx context.Context, code string) error
}

type Service struct {
	store  UserStore
	emails EmailGate
	codes  CodeGate
	cost   int
}

func NewService(store UserStore, emails EmailGate, codes CodeGate) *Service {
	return &Service{store: store, emails: emails, codes: codes, cost: bcrypt.DefaultCost}
}

type Credentials struct {
	Email        string
	Password     string
	SecurityCode string
}

func (c Credentials) missing() error {
	var fields []string
	if strings.TrimSpace(c.Email) == "" {
		fields = append(fields, "email")
	}
	if c.Password == "" {
		fields = append(fields, "password")
	}
	if strings.TrimSpace(c.SecurityCode) == "" {
		fields = append(fields, "securityCode")
	}
	if len(fields) > 0 {
		return &MissingFieldsError{Fields: fields}
	}
	return nil
}

// gate runs the checks shared by sign-in and sign-up, in order: required
// fields, allow-list, security code.
func (s *Service) gate(ctx context.Context, creds Credentials) error {
	if err := creds.missing(); err != nil {
		return err
	}
	if err := s.emails.Check(creds.Email); err != nil {
		return err
	}
	return s.codes.Check(ctx, strings.TrimSpace(creds.SecurityCode))
}

func (s *Service) SignIn(ctx context.Context, creds Credentials) (store.User, error) {
	if err := s.gate(ctx, creds); err != nil {
		return store.User{}, err
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(creds.Email)))
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// SignUp creates an account without a display name; the name prompt fills
// it in after the first sign-in.
func (s *Service) SignUp(ctx context.Context, creds Credentials) (store.User, error) {
	if err := s.gate(ctx, creds); err != nil {
		return store.User{}, err
	}
	if len(creds.Password) < MinPasswordLength {
		return store.User{}, ErrWeakPassword
	}

	email := strings.ToLower(strings.TrimSpace(creds.Email))
	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return store.User{}, ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// RequestPasswordReset returns a reset token for an allow-listed, registered
// email. Unknown addresses yield an empty token and no error so callers
// cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", store.User{}, &MissingFieldsError{Fields: []string{"email"}}
	}
	if err := s.emails.Check(email); err != nil {
		return "", store.User{}, nil
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.User{}, nil
	}
	if err != nil {
		return "", store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return "", store.User{}, fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, time.Now().Add(resetTokenTTL)); err != nil {
		return "", store.User{}, err
	}
	return token, user, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	var fields []string
	if token == "" {
		fields = append(fields, "token")
	}
	if newPassword == "" {
		fields = append(fields, "password")
	}
	if len(fields) > 0 {
		return &MissingFieldsError{Fields: fields}
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	userID, err := s.store.GetPasswordReset(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("lookup reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	if err := s.store.MarkPasswordResetUsed(ctx, token); err != nil {
		log.Printf("mark password reset used: %v", err)
	}
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
