package domain

import "time"

type User struct {
	UserID           string     `json:"id" dynamodbav:"user_id"`
	Username         string     `json:"username" dynamodbav:"username"`
	Email            string     `json:"email" dynamodbav:"email"`
	Phone            *string    `json:"phone" dynamodbav:"phone"`
	PasswordHash     string     `json:"-" dynamodbav:"password_hash"`
	FirstName        string     `json:"first_name" dynamodbav:"first_name"`
	LastName         string     `json:"last_name" dynamodbav:"last_name"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty" dynamodbav:"email_confirmed_at"`
	PhoneConfirmed   bool       `json:"phone_confirmed" dynamodbav:"phone_confirmed"`
	AuthProvider     string     `json:"auth_provider,omitempty" dynamodbav:"auth_provider"` // "local" | "google"
	GoogleSub        string     `json:"-"                       dynamodbav:"google_sub"`
	Enable           bool       `json:"enable" dynamodbav:"enable"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt        time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// EmailConfirmed reports whether the confirmation timestamp has been stamped.
// This is the single fact the verification poller watches for.
func (u *User) EmailConfirmed() bool {
	return u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero()
}

type CreateUserRequest struct {
	Username   string  `json:"username" validate:"required"`
	Password   string  `json:"password" validate:"required,min=8,max=72"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      *string `json:"phone"`
	FirstName  string  `json:"first_name" validate:"required"`
	LastName   string  `json:"last_name" validate:"required"`
	DeviceUUID *string `json:"device_uuid"`
}

type UpdateUserRequest struct {
	Username  *string `json:"username"`
	Phone     *string `json:"phone"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}
