// Package auth registers users, issues JWT tokens and guards HTTP routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/store"
)

// Users is the slice of the store that auth needs.
type Users interface {
	CreateUser(ctx context.Context, u *store.User) error
	UserByUsername(ctx context.Context, username string) (*store.User, error)
	UserByID(ctx context.Context, id string) (*store.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// Registration is the input of Register.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Session is what a successful register, login or refresh returns.
type Session struct {
	TokenPair
	User *store.User `json:"user"`
}

type Service struct {
	users   Users
	tokens  *Tokens
	lockout *Lockout
	cfg     config.SecurityConfig
	log     *slog.Logger
}

// NewService creates the account service.
func NewService(users Users, cfg config.SecurityConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:   users,
		tokens:  NewTokens(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		lockout: NewLockout(cfg.MaxLoginAttempts, cfg.LockoutDuration),
		cfg:     cfg,
		log:     log.With("component", "auth"),
	}
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// Register creates a regular user and logs them in.
func (s *Service) Register(ctx context.Context, r Registration) (*Session, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	if !usernamePattern.MatchString(r.Username) {
		return nil, apperr.New(apperr.Validation, "username must be 3-50 letters, digits, '.', '_' or '-'")
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return nil, apperr.Wrap(err, apperr.Validation, "invalid email address")
		}
	}
	if err := ValidatePassword(r.Password, s.cfg.PasswordMinLength); err != nil {
		return nil, err
	}
	hash, err := HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	u := &store.User{
		Username:     r.Username,
		Email:        r.Email,
		FullName:     strings.TrimSpace(r.FullName),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	return s.session(u)
}

// Login checks credentials. Repeated failures for the same client and
// username lock the pair out.
func (s *Service) Login(ctx context.Context, clientIP, username, password string) (*Session, error) {
	key := clientIP + "|" + strings.ToLower(username)
	if wait := s.lockout.Check(key); wait > 0 {
		return nil, apperr.New(apperr.RateLimit, "too many login attempts, account temporarily locked").
			WithDetail("retry_after_seconds", int(wait.Seconds()+0.5))
	}

	u, err := s.users.UserByUsername(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if u == nil || !CheckPassword(u.PasswordHash, password) {
		if s.lockout.Fail(key) {
			s.log.Warn("login locked out", "username", username, "client_ip", clientIP)
		}
		return nil, apperr.New(apperr.Authentication, "invalid username or password")
	}
	if !u.IsActive {
		return nil, apperr.New(apperr.Authentication, "account is disabled")
	}
	s.lockout.Reset(key)

	at := time.Now().UTC()
	if err := s.users.TouchLogin(ctx, u.ID, at); err != nil {
		s.log.Warn("record login failed", "user_id", u.ID, "error", err)
	} else {
		u.LastLogin = &at
	}
	s.log.Info("user logged in", "user_id", u.ID, "username", u.Username, "client_ip", clientIP)
	return s.session(u)
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.Parse(refreshToken, RefreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.New(apperr.Authentication, "invalid refresh token")
	}
	return s.session(u)
}

// Authenticate resolves an access token to an active user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*store.User, error) {
	claims, err := s.tokens.Parse(accessToken, AccessToken)
	if err != nil {
		return nil, err
	}
	u, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Authentication, "could not validate credentials")
	}
	return u, nil
}

func (s *Service) activeUser(ctx context.Context, id string) (*store.User, error) {
	u, err := s.users.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, errors.New("user is disabled")
	}
	return u, nil
}

// SeedAdmin creates the admin account when no user named "admin" exists.
func (s *Service) SeedAdmin(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}
	_, err := s.users.UserByUsername(ctx, "admin")
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := ValidatePassword(password, s.cfg.PasswordMinLength); err != nil {
		return fmt.Errorf("admin password: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	u := &store.User{
		Username:     "admin",
		FullName:     "Administrator",
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.log.Info("admin user created", "user_id", u.ID)
	return nil
}

func (s *Service) session(u *store.User) (*Session, error) {
	pair, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{TokenPair: pair, User: u}, nil
}
