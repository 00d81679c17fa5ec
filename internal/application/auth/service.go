package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/huddleup/authsync/internal/domain"
	pkgtoken "github.com/huddleup/authsync/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

const (
	emailTokenLen   = 32
	emailTokenTTL   = 24 * time.Hour
	otpTTL          = 15 * time.Minute
	phoneOTPTTL     = 15 * time.Minute
	defaultCooldown = 60 * time.Second
)

type PasswordRecoveryRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ValidateOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

// Service owns the confirmation-token and recovery flows of the identity
// backend. The verification wait flow on the client side only ever touches
// RequestEmailConfirmation / ResendConfirmation / ConfirmEmail.
type Service interface {
	RequestEmailConfirmation(ctx context.Context, userID string) error
	ResendConfirmation(ctx context.Context, email string) error
	ConfirmEmail(ctx context.Context, userID, token string) error
	RequestPhoneConfirmation(ctx context.Context, userID string) error
	ValidatePhoneOTP(ctx context.Context, userID, otp string) error
	RequestPasswordRecovery(ctx context.Context, req PasswordRecoveryRequest) error
	ValidateOTP(ctx context.Context, req ValidateOTPRequest) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, newPassword string) error
}

type verificationStore interface {
	Put(ctx context.Context, v *domain.UserVerification) error
	Get(ctx context.Context, userID, verType string) (*domain.UserVerification, error)
	Delete(ctx context.Context, userID, verType string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type service struct {
	verificationRepo verificationStore
	userRepo         userStore
	mailer           mailer
	smsSender        smsSender
	resendCooldown   time.Duration
}

type ServiceDeps struct {
	VerificationRepo verificationStore
	UserRepo         userStore
	Mailer           mailer
	SMSSender        smsSender
	ResendCooldown   time.Duration
}

func NewService(deps ServiceDeps) Service {
	cooldown := deps.ResendCooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &service{
		verificationRepo: deps.VerificationRepo,
		userRepo:         deps.UserRepo,
		mailer:           deps.Mailer,
		smsSender:        deps.SMSSender,
		resendCooldown:   cooldown,
	}
}

// RequestEmailConfirmation issues a fresh confirmation token for userID and
// emails it. Repeated requests inside the cooldown window are rejected so a
// stuck client hammering "resend" cannot flood the mailbox.
func (s *service) RequestEmailConfirmation(ctx context.Context, userID string) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return s.issueEmailToken(ctx, u)
}

// ResendConfirmation is the public, unauthenticated resend entry point used
// by the verification wait screen, which may hold only a remembered email.
func (s *service) ResendConfirmation(ctx context.Context, email string) error {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("no account for that email: %w", domain.ErrNotFound)
	}
	if u.EmailConfirmed() {
		return fmt.Errorf("email already confirmed: %w", domain.ErrConflict)
	}
	return s.issueEmailToken(ctx, u)
}

func (s *service) issueEmailToken(ctx context.Context, u *domain.User) error {
	if existing, err := s.verificationRepo.Get(ctx, u.UserID, domain.VerificationEmail); err == nil {
		if time.Since(time.Unix(existing.IssuedAt, 0)) < s.resendCooldown {
			return fmt.Errorf("confirmation email sent recently, wait a minute before retrying: %w", domain.ErrConflict)
		}
	}
	token, err := pkgtoken.NewConfirmationToken(emailTokenLen)
	if err != nil {
		return err
	}
	now := time.Now()
	v := &domain.UserVerification{
		UserID:    u.UserID,
		Type:      domain.VerificationEmail,
		Code:      token,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(emailTokenTTL).Unix(),
	}
	if err := s.verificationRepo.Put(ctx, v); err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s,\n\nConfirm your email to finish setting up your HuddleUp account.\n\nConfirmation code: %s\n\nThe code expires in 24 hours.", u.FirstName, token)
	return s.mailer.SendEmail(u.Email, "Confirm your HuddleUp email", body)
}

// ConfirmEmail validates the token and stamps email_confirmed_at, the
// timestamp every polling client is waiting to observe.
func (s *service) ConfirmEmail(ctx context.Context, userID, token string) error {
	v, err := s.verificationRepo.Get(ctx, userID, domain.VerificationEmail)
	if err != nil {
		return fmt.Errorf("token not found: %w", domain.ErrNotFound)
	}
	if v.Code != token {
		return fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	}
	if v.ExpiresAt < time.Now().Unix() {
		return fmt.Errorf("token expired: %w", domain.ErrUnauthorized)
	}
	if err := s.verificationRepo.Delete(ctx, userID, domain.VerificationEmail); err != nil {
		slog.Warn("failed to delete email verification record", "user_id", userID, "err", err)
	}
	return s.userRepo.Update(ctx, userID, map[string]interface{}{
		domain.FieldEmailConfirmedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *service) RequestPhoneConfirmation(ctx context.Context, userID string) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if u.Phone == nil {
		return fmt.Errorf("no phone number on account: %w", domain.ErrBadRequest)
	}
	otp, err := pkgtoken.NewOTP()
	if err != nil {
		return err
	}
	now := time.Now()
	v := &domain.UserVerification{
		UserID:    userID,
		Type:      domain.VerificationPhone,
		Code:      otp,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(phoneOTPTTL).Unix(),
	}
	if err := s.verificationRepo.Put(ctx, v); err != nil {
		return err
	}
	return s.smsSender.SendSMS(ctx, *u.Phone, "Your HuddleUp verification code: "+otp)
}

func (s *service) ValidatePhoneOTP(ctx context.Context, userID, otp string) error {
	v, err := s.verificationRepo.Get(ctx, userID, domain.VerificationPhone)
	if err != nil {
		return fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	if v.Code != otp {
		return fmt.Errorf("invalid code: %w", domain.ErrUnauthorized)
	}
	if v.ExpiresAt < time.Now().Unix() {
		return fmt.Errorf("code expired: %w", domain.ErrUnauthorized)
	}
	if err := s.verificationRepo.Delete(ctx, userID, domain.VerificationPhone); err != nil {
		slog.Warn("failed to delete phone verification record", "user_id", userID, "err", err)
	}
	return s.userRepo.Update(ctx, userID, map[string]interface{}{domain.FieldPhoneConfirmed: true})
}

func (s *service) RequestPasswordRecovery(ctx context.Context, req PasswordRecoveryRequest) error {
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	otp, err := pkgtoken.NewOTP()
	if err != nil {
		return err
	}
	now := time.Now()
	v := &domain.UserVerification{
		UserID:    u.UserID,
		Type:      domain.VerificationOTP,
		Code:      otp,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(otpTTL).Unix(),
	}
	if err := s.verificationRepo.Put(ctx, v); err != nil {
		return err
	}
	return s.mailer.SendEmail(u.Email, "HuddleUp password recovery", "Your recovery code: "+otp)
}

func (s *service) ValidateOTP(ctx context.Context, req ValidateOTPRequest) (*domain.User, error) {
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	v, err := s.verificationRepo.Get(ctx, u.UserID, domain.VerificationOTP)
	if err != nil {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	if v.Code != req.OTP {
		return nil, fmt.Errorf("invalid code: %w", domain.ErrUnauthorized)
	}
	if v.ExpiresAt < time.Now().Unix() {
		return nil, fmt.Errorf("code expired: %w", domain.ErrUnauthorized)
	}
	if err := s.verificationRepo.Delete(ctx, u.UserID, domain.VerificationOTP); err != nil {
		slog.Warn("failed to delete recovery code", "user_id", u.UserID, "err", err)
	}
	return u, nil
}

func (s *service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.userRepo.Update(ctx, userID, map[string]interface{}{domain.FieldPasswordHash: string(hash)})
}
