// Package identity is the identity collaborator: sign-in producing an
// opaque {uid, displayName, photoURL} record, session tokens, and an
// injectable auth-state holder.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"banter/api/internal/auth"
	"banter/api/internal/session"
	"banter/api/internal/store"
	"banter/api/internal/util"
)

// UserRecord is the authenticated-user snapshot handed to the comment
// engine. It is captured into every comment and reply at post time and
// never re-fetched.
type UserRecord struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

var (
	// ErrSignInFailed covers rejected and cancelled sign-ins.
	ErrSignInFailed = errors.New("sign-in failed")
	// ErrUnauthenticated marks operations that require a signed-in user.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Session is an issued sign-in.
type Session struct {
	Token        string
	RefreshToken string
	User         UserRecord
	ExpiresAt    time.Time
}

type userStore interface {
	EnsureUser(ctx context.Context, displayName, photoURL, passwordHash string) (store.User, error)
	GetUserByUID(ctx context.Context, uid string) (store.User, error)
}

type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	users      userStore
	sessions   refreshStore
	state      *State
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(users userStore, sessions refreshStore, state *State, secret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		state:      state,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// SignIn authenticates by display name and password. A name seen for
// the first time registers with the given password; afterwards the
// password must verify. Success records the transition on the state
// holder.
func (s *Service) SignIn(ctx context.Context, name, password, photoURL string) (Session, error) {
	if name == "" || password == "" {
		return Session{}, fmt.Errorf("%w: name and password are required", ErrSignInFailed)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.EnsureUser(ctx, name, photoURL, string(hash))
	if err != nil {
		return Session{}, fmt.Errorf("ensure user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrSignInFailed
	}

	issued, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	s.state.Set(&issued.User)
	return issued, nil
}

// Current resolves a session token to the signed-in user.
func (s *Service) Current(ctx context.Context, token string) (UserRecord, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return UserRecord{}, ErrUnauthenticated
	}
	user, err := s.users.GetUserByUID(ctx, claims.Sub)
	if err != nil {
		return UserRecord{}, ErrUnauthenticated
	}
	return UserRecord{UID: user.UID, DisplayName: user.DisplayName, PhotoURL: user.PhotoURL}, nil
}

// Refresh rotates a refresh token into a fresh session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	data, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, ErrUnauthenticated
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	user, err := s.users.GetUserByUID(ctx, data.UID)
	if err != nil {
		return Session{}, ErrUnauthenticated
	}
	issued, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	s.state.Set(&issued.User)
	return issued, nil
}

// SignOut revokes the refresh token and records the signed-out
// transition.
func (s *Service) SignOut(ctx context.Context, refreshToken string) {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	s.state.Set(nil)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)

	token, err := auth.IssueToken(s.secret, auth.Claims{
		Sub:      user.UID,
		Name:     user.DisplayName,
		PhotoURL: user.PhotoURL,
		JTI:      util.NewID("jti"),
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), session.TokenData{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	}, now.Add(s.refreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		User:         UserRecord{UID: user.UID, DisplayName: user.DisplayName, PhotoURL: user.PhotoURL},
		ExpiresAt:    expiresAt,
	}, nil
}
