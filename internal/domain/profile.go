package domain

import (
	"strings"
	"time"
)

// Profile is the community-facing side of a user: bio, skill tags, avatar.
// PK: profile_id; looked up by user via the user_id GSI.
type Profile struct {
	ProfileID string     `json:"id" dynamodbav:"profile_id"`
	UserID    string     `json:"user_id" dynamodbav:"user_id"`
	Bio       string     `json:"bio" dynamodbav:"bio"`
	Skills    []string   `json:"skills" dynamodbav:"skills"`
	AvatarKey string     `json:"avatar_key,omitempty" dynamodbav:"avatar_key"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Complete reports whether the profile is filled in enough to skip the
// setup step after email verification: a non-empty bio and at least one skill.
func (p *Profile) Complete() bool {
	return p != nil && strings.TrimSpace(p.Bio) != "" && len(p.Skills) > 0
}

type UpdateProfileRequest struct {
	Bio    *string   `json:"bio"`
	Skills *[]string `json:"skills"`
}
