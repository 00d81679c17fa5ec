package session

import (
	"context"
	"fmt"
	"time"

	"github.com/huddleup/authsync/internal/domain"
	"github.com/huddleup/authsync/internal/infrastructure/google"
	pkgdevice "github.com/huddleup/authsync/internal/pkg/device"
	"github.com/huddleup/authsync/internal/pkg/id"
	pkgtoken "github.com/huddleup/authsync/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Username   string  `json:"username" validate:"required"`
	Password   string  `json:"password" validate:"required"`
	DeviceUUID *string `json:"device_uuid"`
}

type GoogleLoginRequest struct {
	IDToken    string  `json:"id_token" validate:"required"`
	DeviceUUID *string `json:"device_uuid"`
}

type LoginResult struct {
	Bearer       string
	RefreshToken string
	Session      *domain.Session
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	LoginWithGoogle(ctx context.Context, req GoogleLoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (bearer, newRefreshToken string, err error)
	// IssueFor creates a fresh session for an already-authenticated user,
	// used by registration and OTP recovery hand-offs.
	IssueFor(ctx context.Context, u *domain.User, deviceUUID *string) (*LoginResult, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error)
	RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
}

type jwtSigner interface {
	Sign(userID, deviceID, sessionID string) (string, error)
}

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Payload, error)
}

type service struct {
	sessionRepo     sessionStore
	userRepo        userStore
	deviceRepo      pkgdevice.Store
	jwtProvider     jwtSigner
	googleVerifier  googleVerifier
	refreshTokenDur time.Duration
}

type ServiceDeps struct {
	SessionRepo     sessionStore
	UserRepo        userStore
	DeviceRepo      pkgdevice.Store
	JWTProvider     jwtSigner
	GoogleVerifier  googleVerifier
	RefreshTokenDur time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		sessionRepo:     deps.SessionRepo,
		userRepo:        deps.UserRepo,
		deviceRepo:      deps.DeviceRepo,
		jwtProvider:     deps.JWTProvider,
		googleVerifier:  deps.GoogleVerifier,
		refreshTokenDur: deps.RefreshTokenDur,
	}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		u, err = s.userRepo.GetByEmail(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	return s.IssueFor(ctx, u, req.DeviceUUID)
}

func (s *service) LoginWithGoogle(ctx context.Context, req GoogleLoginRequest) (*LoginResult, error) {
	if s.googleVerifier == nil {
		return nil, fmt.Errorf("google sign-in not configured: %w", domain.ErrBadRequest)
	}
	payload, err := s.googleVerifier.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	u, err := s.userRepo.GetByGoogleSub(ctx, payload.Sub)
	if err != nil {
		u, err = s.registerGoogleUser(ctx, payload)
		if err != nil {
			return nil, err
		}
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	return s.IssueFor(ctx, u, req.DeviceUUID)
}

// registerGoogleUser provisions an account from a verified Google identity.
// Google already verified the address, so email_confirmed_at is stamped
// immediately and these users never see the verification wait screen.
func (s *service) registerGoogleUser(ctx context.Context, p *google.Payload) (*domain.User, error) {
	if !p.EmailVerified {
		return nil, fmt.Errorf("google account email not verified: %w", domain.ErrForbidden)
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     p.Email,
		Email:        p.Email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		AuthProvider: "google",
		GoogleSub:    p.Sub,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	confirmed := now
	u.EmailConfirmedAt = &confirmed
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) IssueFor(ctx context.Context, u *domain.User, deviceUUID *string) (*LoginResult, error) {
	dev, err := pkgdevice.Resolve(ctx, s.deviceRepo, deviceUUID, u.UserID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		SessionID:        id.New(),
		UserID:           u.UserID,
		DeviceID:         dev.DeviceID,
		Enable:           true,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.refreshTokenDur).Unix(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, err
	}
	bearer, err := s.jwtProvider.Sign(u.UserID, dev.DeviceID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	sess.User = u
	return &LoginResult{Bearer: bearer, RefreshToken: refreshToken, Session: sess}, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Update(ctx, sessionID, map[string]interface{}{domain.FieldEnable: false})
}

// GetCurrent returns the active session with its user attached. The client's
// verification poller calls this on every cycle to inspect email_confirmed_at.
func (s *service) GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Enable {
		return nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	u, err := s.userRepo.Get(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	sess.User = u
	return sess, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	sess, err := s.sessionRepo.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid or expired refresh token: %w", domain.ErrUnauthorized)
	}
	if sess.RefreshExpiresAt < time.Now().Unix() {
		return "", "", fmt.Errorf("refresh token expired: %w", domain.ErrUnauthorized)
	}
	newToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return "", "", err
	}
	newExpiry := time.Now().Add(s.refreshTokenDur).Unix()
	if err := s.sessionRepo.RotateRefreshToken(ctx, sess.SessionID, newToken, newExpiry); err != nil {
		return "", "", err
	}
	bearer, err := s.jwtProvider.Sign(sess.UserID, sess.DeviceID, sess.SessionID)
	if err != nil {
		return "", "", err
	}
	return bearer, newToken, nil
}
