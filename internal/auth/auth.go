// Package auth registers users and issues, rotates and revokes their
// tokens. Access tokens are short-lived JWTs; refresh tokens are random
// strings of which only the SHA-256 hash is stored.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/eventflow/internal/model"
	"github.com/iliyamo/eventflow/internal/repository"
	"github.com/iliyamo/eventflow/internal/utils"
)

// Settings carries the token and hashing parameters.
type Settings struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// Service implements register, login, refresh, logout and me.
type Service struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	cfg    Settings
	log    *zap.Logger
}

func New(store repository.Store, cfg Settings, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{users: store.Users(), tokens: store.Tokens(), cfg: cfg, log: log}
}

// Session is what a successful authentication returns to the client.
type Session struct {
	User    *model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register creates a USER account and signs it in.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil || name == "" || len(password) < 6 {
		return nil, fmt.Errorf("name, valid email and a password of at least 6 characters are required: %w", model.ErrInvalidInput)
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Roles:        []model.Role{model.RoleUser},
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return s.issue(ctx, u)
}

// Login checks the password and signs the user in. Unknown emails and
// wrong passwords are indistinguishable, in response and in timing.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, model.ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// token is revoked, so each refresh token works once.
func (s *Service) Refresh(ctx context.Context, raw string) (*Session, error) {
	hash := utils.HashRefreshRaw(strings.TrimSpace(raw))
	userID, err := s.tokens.ValidateRefresh(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		return nil, fmt.Errorf("revoke refresh: %w", err)
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

// Logout revokes one refresh token. An unknown token is not an error.
func (s *Service) Logout(ctx context.Context, raw string) error {
	err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(strings.TrimSpace(raw)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// LogoutAll revokes every refresh token of the actor.
func (s *Service) LogoutAll(ctx context.Context, actor model.Actor) error {
	if !actor.Authenticated() {
		return model.ErrUnauthenticated
	}
	return s.tokens.RevokeAllForUser(ctx, actor.UserID)
}

// Me returns the actor's user record.
func (s *Service) Me(ctx context.Context, actor model.Actor) (*model.User, error) {
	if !actor.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	u, err := s.users.GetByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("user: %w", model.ErrNotFound)
	}
	return u, err
}

func (s *Service) issue(ctx context.Context, u *model.User) (*Session, error) {
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u, s.cfg.AccessTTLMin)
	if err != nil {
		return nil, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return nil, fmt.Errorf("issue refresh: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, fmt.Errorf("save refresh: %w", err)
	}
	return &Session{User: u, Access: access, Refresh: refresh}, nil
}
