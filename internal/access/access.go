// Package access holds the two sign-in gates that sit in front of password
// authentication: the allow-listed email addresses and the shared security
// code stored in the access collection.
package access

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"progress/api/internal/store"
)

// DefaultEmails is used when the configuration supplies no allow-list.
var DefaultEmails = []string{
	"admin@example.com",
}

var (
	ErrEmailNotAllowed   = errors.New("email not allowed")
	ErrInvalidCode       = errors.New("incorrect security code")
	ErrCodeNotConfigured = errors.New("security code not configured")
)

type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList matches case-insensitively. An empty list falls back to
// DefaultEmails.
func NewAllowList(emails []string) *AllowList {
	if len(emails) == 0 {
		emails = DefaultEmails
	}
	list := &AllowList{emails: make(map[string]struct{}, len(emails))}
	for _, email := range emails {
		if email = normalize(email); email != "" {
			list.emails[email] = struct{}{}
		}
	}
	return list
}

func (l *AllowList) Allowed(email string) bool {
	_, ok := l.emails[normalize(email)]
	return ok
}

func (l *AllowList) Check(email string) error {
	if !l.Allowed(email) {
		return ErrEmailNotAllowed
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type CodeStore interface {
	GetAccessCode(ctx context.Context, documentID string) (string, error)
}

// CodeChecker compares a submitted code with the loginPassword document. The
// document is read on every check so a rotated code applies immediately.
type CodeChecker struct {
	store CodeStore
}

func NewCodeChecker(store CodeStore) *CodeChecker {
	return &CodeChecker{store: store}
}

func (c *CodeChecker) Check(ctx context.Context, code string) error {
	expected, err := c.store.GetAccessCode(ctx, store.SecurityCodeDocument)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCodeNotConfigured
	}
	if err != nil {
		return fmt.Errorf("read security code: %w", err)
	}
	if expected == "" {
		return ErrCodeNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(expected)) != 1 {
		return ErrInvalidCode
	}
	return nil
}
