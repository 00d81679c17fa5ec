package profile

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/huddleup/authsync/internal/domain"
	s3infra "github.com/huddleup/authsync/internal/infrastructure/s3"
	"github.com/huddleup/authsync/internal/pkg/id"
)

const avatarURLTTL = 15 * time.Minute

type Service interface {
	GetByUser(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateByUser(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.Profile, error)
	UploadAvatar(ctx context.Context, userID, filename string, r io.Reader) (*domain.Profile, error)
	AvatarURL(ctx context.Context, userID string) (string, error)
}

type profileStore interface {
	GetByUser(ctx context.Context, userID string) (*domain.Profile, error)
	Update(ctx context.Context, profileID string, updates map[string]interface{}) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type service struct {
	repo  profileStore
	store objectStore
}

type ServiceDeps struct {
	ProfileRepo profileStore
	ObjectStore objectStore
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.ProfileRepo, store: deps.ObjectStore}
}

func (s *service) GetByUser(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.repo.GetByUser(ctx, userID)
}

func (s *service) UpdateByUser(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	p, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Bio != nil {
		updates[domain.FieldBio] = *req.Bio
	}
	if req.Skills != nil {
		updates[domain.FieldSkills] = *req.Skills
	}
	if len(updates) == 0 {
		return p, nil
	}
	if err := s.repo.Update(ctx, p.ProfileID, updates); err != nil {
		return nil, err
	}
	return s.repo.GetByUser(ctx, userID)
}

// UploadAvatar streams the image to object storage and records the key. The
// previous avatar object is removed best-effort.
func (s *service) UploadAvatar(ctx context.Context, userID, filename string, r io.Reader) (*domain.Profile, error) {
	p, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("profiles/%s/%s%s", p.ProfileID, id.New(), path.Ext(filename))
	if _, err := s.store.Upload(ctx, key, r, s3infra.DetectImageContentType(filename)); err != nil {
		return nil, err
	}
	old := p.AvatarKey
	if err := s.repo.Update(ctx, p.ProfileID, map[string]interface{}{domain.FieldAvatarKey: key}); err != nil {
		return nil, err
	}
	if old != "" {
		_ = s.store.Delete(ctx, old)
	}
	return s.repo.GetByUser(ctx, userID)
}

func (s *service) AvatarURL(ctx context.Context, userID string) (string, error) {
	p, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if p.AvatarKey == "" {
		return "", fmt.Errorf("no avatar uploaded: %w", domain.ErrNotFound)
	}
	return s.store.PresignedURL(ctx, p.AvatarKey, avatarURLTTL)
}
