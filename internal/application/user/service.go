package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/huddleup/authsync/internal/domain"
	"github.com/huddleup/authsync/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	// Register creates the account, seeds an empty profile and dispatches the
	// confirmation email. The caller issues the initial session separately.
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error)
	Delete(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

type userStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, userID string) error
}

type sessionStore interface {
	SoftDeleteByUser(ctx context.Context, userID string) error
}

type profileStore interface {
	Put(ctx context.Context, p *domain.Profile) error
}

// confirmationSender dispatches the initial confirmation email; implemented
// by the auth service.
type confirmationSender interface {
	RequestEmailConfirmation(ctx context.Context, userID string) error
}

type service struct {
	repo         userStore
	sessionRepo  sessionStore
	profileRepo  profileStore
	confirmation confirmationSender
}

type ServiceDeps struct {
	UserRepo     userStore
	SessionRepo  sessionStore
	ProfileRepo  profileStore
	Confirmation confirmationSender
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:         deps.UserRepo,
		sessionRepo:  deps.SessionRepo,
		profileRepo:  deps.ProfileRepo,
		confirmation: deps.Confirmation,
	}
}

func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		AuthProvider: "local",
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	// Empty profile seed; the post-verification redirect inspects it to pick
	// between home and profile setup.
	p := &domain.Profile{
		ProfileID: id.New(),
		UserID:    u.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profileRepo.Put(ctx, p); err != nil {
		return nil, err
	}
	if err := s.confirmation.RequestEmailConfirmation(ctx, u.UserID); err != nil {
		// The account exists; a failed send is recoverable through resend.
		slog.Warn("failed to send confirmation email at signup", "user_id", u.UserID, "err", err)
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	updates := map[string]interface{}{}
	if req.Username != nil {
		updates[domain.FieldUsername] = *req.Username
	}
	if req.Phone != nil {
		updates[domain.FieldPhone] = *req.Phone
	}
	if req.FirstName != nil {
		updates[domain.FieldFirstName] = *req.FirstName
	}
	if req.LastName != nil {
		updates[domain.FieldLastName] = *req.LastName
	}
	if len(updates) == 0 {
		return s.repo.Get(ctx, userID)
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) Delete(ctx context.Context, userID string) error {
	if err := s.repo.SoftDelete(ctx, userID); err != nil {
		return err
	}
	return s.sessionRepo.SoftDeleteByUser(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("current password incorrect: %w", domain.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{domain.FieldPasswordHash: string(hash)})
}
