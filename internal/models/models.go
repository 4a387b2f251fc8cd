package models

import (
	"time"

	"github.com/Skotchmaster/ums/internal/roles"
)

type UserStatus string

const (
	StatusActive   UserStatus = "ACTIVE"
	StatusPending  UserStatus = "PENDING"
	StatusDisabled UserStatus = "DISABLED"
	StatusDeleted  UserStatus = "DELETED"
)

// CanSignIn is false for accounts an admin has switched off.
func (s UserStatus) CanSignIn() bool {
	return s != StatusDisabled && s != StatusDeleted
}

type User struct {
	ID              string     `gorm:"primaryKey;size:36"                json:"id"`
	Email           string     `gorm:"size:320;not null"                 json:"email"`
	EmailNormalized string     `gorm:"size:320;uniqueIndex;not null"     json:"-"`
	PasswordHash    *string    `gorm:"size:255"                          json:"-"`
	EmailVerifiedAt *time.Time `                                         json:"email_verified_at,omitempty"`
	Status          UserStatus `gorm:"size:16;index;not null"            json:"status"`
	Name            string     `gorm:"size:255"                          json:"name"`
	CreatedAt       time.Time  `                                         json:"created_at"`
	UpdatedAt       time.Time  `                                         json:"updated_at"`
	LastLoginAt     *time.Time `                                         json:"last_login_at,omitempty"`
}

type Session struct {
	ID         string     `gorm:"primaryKey;size:36"            json:"id"`
	TokenHash  string     `gorm:"size:64;uniqueIndex;not null"  json:"-"`
	UserID     string     `gorm:"size:36;index;not null"        json:"user_id"`
	CSRFToken  string     `gorm:"column:csrf_token;not null"    json:"-"`
	CreatedAt  time.Time  `                                     json:"created_at"`
	LastSeenAt time.Time  `gorm:"not null"                      json:"last_seen_at"`
	ExpiresAt  time.Time  `gorm:"index;not null"                json:"expires_at"`
	RevokedAt  *time.Time `gorm:"index"                         json:"revoked_at,omitempty"`
	IP         string     `gorm:"size:64"                       json:"ip"`
	UserAgent  string     `gorm:"size:512"                      json:"user_agent"`
}

// ActiveAt reports whether the session is usable at the given instant.
func (s *Session) ActiveAt(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposePasswordReset TokenPurpose = "password_reset"
)

type OneTimeToken struct {
	ID        string       `gorm:"primaryKey;size:36"           json:"id"`
	UserID    string       `gorm:"size:36;index;not null"       json:"user_id"`
	Purpose   TokenPurpose `gorm:"size:32;index;not null"       json:"purpose"`
	TokenHash string       `gorm:"size:64;uniqueIndex;not null" json:"-"`
	CreatedAt time.Time    `                                    json:"created_at"`
	ExpiresAt time.Time    `gorm:"index;not null"               json:"expires_at"`
	UsedAt    *time.Time   `                                    json:"used_at,omitempty"`
}

func (t *OneTimeToken) UsableAt(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}

type UserRole struct {
	UserID     string     `gorm:"primaryKey;size:36" json:"user_id"`
	Role       roles.Role `gorm:"primaryKey;size:32" json:"role"`
	AssignedBy *string    `gorm:"size:36"            json:"assigned_by,omitempty"`
	AssignedAt time.Time  `gorm:"not null"           json:"assigned_at"`
}

type AuditLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Action    string    `gorm:"size:64;index;not null"   json:"action"`
	ActorID   *string   `gorm:"size:36;index"            json:"actor_id,omitempty"`
	TargetID  *string   `gorm:"size:36;index"            json:"target_id,omitempty"`
	IP        string    `gorm:"size:64"                  json:"ip"`
	Metadata  string    `gorm:"type:text"                json:"metadata"`
	CreatedAt time.Time `gorm:"index"                    json:"created_at"`
}

type Group struct {
	ID          string    `gorm:"primaryKey;size:36"          json:"id"`
	Name        string    `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:1024"                   json:"description"`
	CreatedAt   time.Time `                                   json:"created_at"`
	UpdatedAt   time.Time `                                   json:"updated_at"`
}

func (Group) TableName() string { return "user_groups" }

type GroupMember struct {
	GroupID string    `gorm:"primaryKey;size:36" json:"group_id"`
	UserID  string    `gorm:"primaryKey;size:36" json:"user_id"`
	AddedAt time.Time `gorm:"not null"           json:"added_at"`
}

type Setting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text"           json:"value"`
	UpdatedBy *string   `gorm:"size:36"             json:"updated_by,omitempty"`
	UpdatedAt time.Time `                           json:"updated_at"`
}

type OutboxMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	To        string    `gorm:"column:recipient;size:320;index;not null" json:"to"`
	Subject   string    `gorm:"size:255;not null"        json:"subject"`
	Body      string    `gorm:"type:text"                json:"body"`
	Kind      string    `gorm:"size:32;index;not null"   json:"kind"`
	Token     string    `gorm:"size:128"                 json:"-"`
	CreatedAt time.Time `                                json:"created_at"`
	SMTPSent  bool      `gorm:"column:smtp_sent;default:false" json:"smtp_sent"`
	SMTPError string    `gorm:"column:smtp_error;size:1024"    json:"smtp_error,omitempty"`
}

// All is the migration list in dependency order.
func All() []any {
	return []any{
		&User{}, &Session{}, &OneTimeToken{}, &UserRole{},
		&AuditLog{}, &Group{}, &GroupMember{}, &Setting{}, &OutboxMessage{},
	}
}
