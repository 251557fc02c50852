package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SecurityEventType string

const (
	EventSignup          SecurityEventType = "signup"
	EventSigninSuccess   SecurityEventType = "signin_success"
	EventSigninFailure   SecurityEventType = "signin_failure"
	EventGoogleSignin    SecurityEventType = "google_signin"
	EventRateLimited     SecurityEventType = "rate_limited"
	EventLogout          SecurityEventType = "logout"
	EventEmailVerified   SecurityEventType = "email_verified"
	EventPasswordReset   SecurityEventType = "password_reset"
	EventPasswordChanged SecurityEventType = "password_changed"
	EventAccountDeleted  SecurityEventType = "account_deleted"
)

// SecurityEvent is one entry of the audit trail.
type SecurityEvent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	Type      SecurityEventType `bson:"type" json:"type"`
	UserID    string            `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Email     string            `bson:"email,omitempty" json:"email,omitempty"`
	IPAddress string            `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent string            `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	Detail    string            `bson:"detail,omitempty" json:"detail,omitempty"`
}
