package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huddleup/authsync/internal/domain"
	"github.com/huddleup/authsync/internal/infrastructure/google"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error) {
	args := m.Called(ctx, sub)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockSessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionStore) GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error) {
	args := m.Called(ctx, token)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionStore) RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error {
	return m.Called(ctx, sessionID, newToken, newExpiry).Error(0)
}
func (m *mockSessionStore) Update(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	return m.Called(ctx, sessionID, updates).Error(0)
}

type mockDeviceStore struct{ mock.Mock }

func (m *mockDeviceStore) GetByUUID(ctx context.Context, deviceUUID string) (*domain.Device, error) {
	args := m.Called(ctx, deviceUUID)
	if d, _ := args.Get(0).(*domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockDeviceStore) Put(ctx context.Context, d *domain.Device) error {
	return m.Called(ctx, d).Error(0)
}

type mockJWT struct{ mock.Mock }

func (m *mockJWT) Sign(userID, deviceID, sessionID string) (string, error) {
	args := m.Called(userID, deviceID, sessionID)
	return args.String(0), args.Error(1)
}

type mockGoogleVerifier struct{ mock.Mock }

func (m *mockGoogleVerifier) Verify(ctx context.Context, token string) (*google.Payload, error) {
	args := m.Called(ctx, token)
	if p, _ := args.Get(0).(*google.Payload); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

// --- Login ---

func TestLogin_UnknownUser(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	svc := NewService(ServiceDeps{UserRepo: us, SessionRepo: &mockSessionStore{}, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}})
	_, err := svc.Login(context.Background(), LoginRequest{Username: "ghost", Password: "x"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_WrongPassword(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "ada").Return(&domain.User{
		UserID: "u1", Username: "ada", Enable: true, PasswordHash: hashOf(t, "correct"),
	}, nil)

	svc := NewService(ServiceDeps{UserRepo: us, SessionRepo: &mockSessionStore{}, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}})
	_, err := svc.Login(context.Background(), LoginRequest{Username: "ada", Password: "wrong"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_DisabledAccount(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "ada").Return(&domain.User{
		UserID: "u1", Username: "ada", Enable: false, PasswordHash: hashOf(t, "pw"),
	}, nil)

	svc := NewService(ServiceDeps{UserRepo: us, SessionRepo: &mockSessionStore{}, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}})
	_, err := svc.Login(context.Background(), LoginRequest{Username: "ada", Password: "pw"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestLogin_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	ds := &mockDeviceStore{}
	jp := &mockJWT{}
	us.On("GetByUsername", mock.Anything, "ada").Return(&domain.User{
		UserID: "u1", Username: "ada", Enable: true, PasswordHash: hashOf(t, "pw"),
	}, nil)
	ds.On("Put", mock.Anything, mock.AnythingOfType("*domain.Device")).Return(nil)
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	jp.On("Sign", "u1", mock.Anything, mock.Anything).Return("bearer-token", nil)

	svc := NewService(ServiceDeps{UserRepo: us, SessionRepo: ss, DeviceRepo: ds, JWTProvider: jp, RefreshTokenDur: time.Hour})
	res, err := svc.Login(context.Background(), LoginRequest{Username: "ada", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, "bearer-token", res.Bearer)
	assert.NotEmpty(t, res.RefreshToken)
	require.NotNil(t, res.Session.User)
	assert.Equal(t, "u1", res.Session.User.UserID)
}

// --- Google sign-in ---

func TestLoginWithGoogle_ProvisionsConfirmedUser(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	ds := &mockDeviceStore{}
	jp := &mockJWT{}
	gv := &mockGoogleVerifier{}
	gv.On("Verify", mock.Anything, "id-tok").Return(&google.Payload{
		Sub: "sub1", Email: "ada@g.com", EmailVerified: true, FirstName: "Ada",
	}, nil)
	us.On("GetByGoogleSub", mock.Anything, "sub1").Return(nil, domain.ErrNotFound)
	us.On("Put", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.AuthProvider == "google" && u.EmailConfirmed()
	})).Return(nil)
	ds.On("Put", mock.Anything, mock.AnythingOfType("*domain.Device")).Return(nil)
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	jp.On("Sign", mock.Anything, mock.Anything, mock.Anything).Return("bearer", nil)

	svc := NewService(ServiceDeps{UserRepo: us, SessionRepo: ss, DeviceRepo: ds, JWTProvider: jp, GoogleVerifier: gv, RefreshTokenDur: time.Hour})
	res, err := svc.LoginWithGoogle(context.Background(), GoogleLoginRequest{IDToken: "id-tok"})

	require.NoError(t, err)
	assert.True(t, res.Session.User.EmailConfirmed())
	us.AssertExpectations(t)
}

func TestLoginWithGoogle_UnverifiedGoogleEmailRejected(t *testing.T) {
	us := &mockUserStore{}
	gv := &mockGoogleVerifier{}
	gv.On("Verify", mock.Anything, "id-tok").Return(&google.Payload{
		Sub: "sub1", Email: "ada@g.com", EmailVerified: false,
	}, nil)
	us.On("GetByGoogleSub", mock.Anything, "sub1").Return(nil, domain.ErrNotFound)

	svc := NewService(ServiceDeps{UserRepo: us, SessionRepo: &mockSessionStore{}, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}, GoogleVerifier: gv})
	_, err := svc.LoginWithGoogle(context.Background(), GoogleLoginRequest{IDToken: "id-tok"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

// --- GetCurrent ---

func TestGetCurrent_DisabledSession(t *testing.T) {
	ss := &mockSessionStore{}
	ss.On("Get", mock.Anything, "s1").Return(&domain.Session{SessionID: "s1", Enable: false}, nil)

	svc := NewService(ServiceDeps{UserRepo: &mockUserStore{}, SessionRepo: ss, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}})
	_, err := svc.GetCurrent(context.Background(), "s1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestGetCurrent_AttachesUser(t *testing.T) {
	ss := &mockSessionStore{}
	us := &mockUserStore{}
	confirmed := time.Now().UTC()
	ss.On("Get", mock.Anything, "s1").Return(&domain.Session{SessionID: "s1", UserID: "u1", Enable: true}, nil)
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", EmailConfirmedAt: &confirmed}, nil)

	svc := NewService(ServiceDeps{UserRepo: us, SessionRepo: ss, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}})
	sess, err := svc.GetCurrent(context.Background(), "s1")

	require.NoError(t, err)
	require.NotNil(t, sess.User)
	assert.True(t, sess.User.EmailConfirmed())
}

// --- Refresh ---

func TestRefresh_ExpiredToken(t *testing.T) {
	ss := &mockSessionStore{}
	ss.On("GetByRefreshToken", mock.Anything, "old").Return(&domain.Session{
		SessionID: "s1", UserID: "u1", RefreshExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}, nil)

	svc := NewService(ServiceDeps{UserRepo: &mockUserStore{}, SessionRepo: ss, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}})
	_, _, err := svc.Refresh(context.Background(), "old")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestRefresh_RotatesToken(t *testing.T) {
	ss := &mockSessionStore{}
	jp := &mockJWT{}
	ss.On("GetByRefreshToken", mock.Anything, "old").Return(&domain.Session{
		SessionID: "s1", UserID: "u1", DeviceID: "d1",
		RefreshExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, nil)
	ss.On("RotateRefreshToken", mock.Anything, "s1", mock.Anything, mock.Anything).Return(nil)
	jp.On("Sign", "u1", "d1", "s1").Return("new-bearer", nil)

	svc := NewService(ServiceDeps{UserRepo: &mockUserStore{}, SessionRepo: ss, DeviceRepo: &mockDeviceStore{}, JWTProvider: jp, RefreshTokenDur: time.Hour})
	bearer, newToken, err := svc.Refresh(context.Background(), "old")

	require.NoError(t, err)
	assert.Equal(t, "new-bearer", bearer)
	assert.NotEqual(t, "old", newToken)
	ss.AssertExpectations(t)
}

// --- Logout ---

func TestLogout_DisablesSession(t *testing.T) {
	ss := &mockSessionStore{}
	ss.On("Update", mock.Anything, "s1", map[string]interface{}{"enable": false}).Return(nil)

	svc := NewService(ServiceDeps{UserRepo: &mockUserStore{}, SessionRepo: ss, DeviceRepo: &mockDeviceStore{}, JWTProvider: &mockJWT{}})
	require.NoError(t, svc.Logout(context.Background(), "s1"))
	ss.AssertExpectations(t)
}
