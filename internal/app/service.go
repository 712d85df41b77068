package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"progress/api/internal/access"
	"progress/api/internal/auth"
	"progress/api/internal/authpw"
	"progress/api/internal/blob"
	"progress/api/internal/config"
	"progress/api/internal/export"
	"progress/api/internal/livequery"
	"progress/api/internal/rbac"
	"progress/api/internal/search"
	"progress/api/internal/store"
	"progress/api/internal/util"
)

// Session is the signed-in caller, resolved from the bearer token on every
// request and handed to the handlers that need it.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

var visitor = Session{Role: string(rbac.RoleVisitor)}

type DataStore interface {
	authpw.UserStore
	access.CodeStore
	SessionStore

	ListClients(ctx context.Context) ([]store.Client, error)
	GetClient(ctx context.Context, clientID string) (store.Client, error)
	InsertClient(ctx context.Context, item store.Client) (bool, error)
	PatchClient(ctx context.Context, clientID string, patch store.ClientPatch) error
	MarkClientComplete(ctx context.Context, clientID string) (bool, error)
	DeleteClient(ctx context.Context, clientID string) error

	ListUpdates(ctx context.Context) ([]store.Update, error)
	ListClientUpdates(ctx context.Context, clientID string) ([]store.Update, error)
	GetUpdate(ctx context.Context, updateID string) (store.Update, error)
	InsertUpdate(ctx context.Context, item store.Update) (store.Update, error)
	MarkUpdateSeen(ctx context.Context, updateID string) (bool, error)
	AppendComment(ctx context.Context, updateID, text string) ([]string, error)

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUserProfile(ctx context.Context, userID string, patch store.ProfilePatch) error

	Ping(ctx context.Context) error
}

// SessionStore keeps refresh sessions and revoked access tokens. Redis serves
// it in production; the Postgres store implements it as well.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type ClientSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexClient(record search.ClientRecord)
	DeleteClient(id string)
}

type Mailer interface {
	IsConfigured() bool
	SendPasswordReset(to, name, resetURL string) error
}

type Exporter interface {
	BuildReport(ctx context.Context, clientID string) (export.Report, error)
	Export(ctx context.Context, clientID string, format export.Format) (*export.Result, error)
}

// Deps are the collaborators of Service. Sessions defaults to Store,
// Exporter to an export.Service over Store; Search and Mailer may be nil.
type Deps struct {
	Store    DataStore
	Sessions SessionStore
	Bus      Bus
	Blobs    blob.Store
	Search   ClientSearch
	Mailer   Mailer
	Exporter Exporter
}

// Bus is the change bus: writers publish on it, live queries subscribe to it.
type Bus interface {
	livequery.Publisher
	livequery.Notifier
}

type Service struct {
	cfg      config.Config
	store    DataStore
	sessions SessionStore
	bus      Bus
	blobs    blob.Store
	search   ClientSearch
	mailer   Mailer
	exporter Exporter
	signer   *auth.Signer
	authpw   *authpw.Service
	validate *validator.Validate
	now      func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		bus:      deps.Bus,
		blobs:    deps.Blobs,
		search:   deps.Search,
		mailer:   deps.Mailer,
		exporter: deps.Exporter,
		signer:   auth.NewSigner(cfg.JWTSecret),
		validate: newValidator(),
		now:      time.Now,
	}
	if s.sessions == nil {
		s.sessions = deps.Store
	}
	if s.bus == nil {
		s.bus = livequery.NewHub()
	}
	if s.exporter == nil {
		s.exporter = export.NewService(deps.Store)
	}
	s.authpw = authpw.NewService(deps.Store, access.NewAllowList(cfg.AllowedEmails), access.NewCodeChecker(deps.Store))
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// check validates input against its struct tags and turns failures into a
// VALIDATION_ERROR listing each offending field.
func (s *Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required", "notblank":
			fields[fe.Field()] = fe.Field() + " is required"
		case "email":
			fields[fe.Field()] = fe.Field() + " must be a valid email"
		default:
			fields[fe.Field()] = fe.Field() + " is invalid"
		}
	}
	return validationError("Please fill in all required fields.", fields)
}

// publish announces a change on collection. Failures are logged; the write
// that caused them has already happened.
func (s *Service) publish(ctx context.Context, collection string) {
	if err := s.bus.Publish(ctx, collection); err != nil {
		log.Printf("publish %s change: %v", collection, err)
	}
}

func (s *Service) Notifier() livequery.Notifier {
	return s.bus
}

func (s *Service) Can(session Session, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(session.Role), action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingBlobs reports whether blob storage is reachable. Stores without a
// health check always pass.
func (s *Service) PingBlobs(ctx context.Context) error {
	pinger, ok := s.blobs.(blob.Pinger)
	if !ok {
		return nil
	}
	return pinger.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

type Credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	SecurityCode string `json:"securityCode"`
}

func (s *Service) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.Credentials(creds))
	if err != nil {
		return Session{}, authError(err, "sign in")
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignUp(ctx context.Context, creds Credentials) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.Credentials(creds))
	if err != nil {
		return Session{}, authError(err, "sign up")
	}
	s.publish(ctx, store.CollectionUsers)
	return s.issueSession(ctx, user)
}

// authError maps the sign-in gates to their user-facing errors.
func authError(err error, action string) error {
	var missing *authpw.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		fields := make(map[string]string, len(missing.Fields))
		for _, field := range missing.Fields {
			fields[field] = field + " is required"
		}
		return validationError("Please fill in all fields.", fields)
	case errors.Is(err, access.ErrEmailNotAllowed):
		return domainError(http.StatusForbidden, CodeEmailNotAllowed, "Email not allowed. Please contact support.", nil)
	case errors.Is(err, access.ErrInvalidCode), errors.Is(err, access.ErrCodeNotConfigured):
		return domainError(http.StatusForbidden, CodeInvalidSecurityCode, "Incorrect security code.", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, CodeInvalidCredentials, "Failed to login. Please check your credentials.", nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, CodeEmailTaken, "Email already registered.", nil)
	case errors.Is(err, authpw.ErrWeakPassword):
		return validationError(err.Error(), map[string]string{"password": err.Error()})
	case errors.Is(err, authpw.ErrInvalidResetToken):
		return domainError(http.StatusBadRequest, CodeInvalidResetToken, "Reset link is invalid or has expired.", nil)
	}
	log.Printf("%s: %v", action, err)
	return serverError(action)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, claims, err := s.signer.Issue(auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Role:  string(rbac.RoleAdmin),
		JTI:   util.NewID("jti"),
	}, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.Name,
		Role:         claims.Role,
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		Role:        claims.Role,
		JTI:         claims.JTI,
		ExpiresAt:   claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			log.Printf("revoke access token: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("revoke refresh session: %v", err)
		}
	}
	return nil
}

// RequestPasswordReset mails a reset link when the address belongs to an
// allow-listed account. The returned token is only non-empty when mail is not
// configured, for local development.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, user, err := s.authpw.RequestPasswordReset(ctx, email)
	if err != nil {
		return "", authError(err, "request password reset")
	}
	if token == "" {
		return "", nil
	}
	if !s.SMTPConfigured() {
		return token, nil
	}
	resetURL := s.cfg.PublicBaseURL + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordReset(user.Email, user.Name, resetURL); err != nil {
		log.Printf("send password reset to %s: %v", user.Email, err)
	}
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.authpw.ResetPassword(ctx, token, newPassword); err != nil {
		return authError(err, "reset password")
	}
	return nil
}
