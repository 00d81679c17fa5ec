package domain

// Verification kinds stored per user.
const (
	VerificationEmail = "email"
	VerificationPhone = "phone"
	VerificationOTP   = "otp"
)

// UserVerification stores email confirmation tokens, phone codes and
// recovery OTPs. PK: user_id, SK: type.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL; IssuedAt backs the
// resend cooldown check.
type UserVerification struct {
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	Type      string `json:"type" dynamodbav:"type"`
	Code      string `json:"code" dynamodbav:"code"`
	IssuedAt  int64  `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}
