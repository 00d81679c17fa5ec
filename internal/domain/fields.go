package domain

// Attribute names used in partial-update maps handed to the repositories.
// They must match the dynamodbav tags on the structs in this package; using
// the constants keeps update sites and tags from drifting apart.
const (
	FieldEnable           = "enable"
	FieldUsername         = "username"
	FieldPhone            = "phone"
	FieldFirstName        = "first_name"
	FieldLastName         = "last_name"
	FieldRefreshToken     = "refresh_token"
	FieldRefreshExpiresAt = "refresh_expires_at"
	FieldEmailConfirmedAt = "email_confirmed_at"
	FieldPhoneConfirmed   = "phone_confirmed"
	FieldPasswordHash     = "password_hash"
	FieldBio              = "bio"
	FieldSkills           = "skills"
	FieldAvatarKey        = "avatar_key"
)
