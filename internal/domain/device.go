package domain

import "time"

// Device identifies one client installation. Sessions are bound to the
// device that opened them so sign-out can stay scoped to a single client.
type Device struct {
	DeviceID  string    `json:"id" dynamodbav:"device_id"`
	UUID      string    `json:"uuid" dynamodbav:"device_uuid"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}
