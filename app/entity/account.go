package entity

import (
	"database/sql"
	"time"
)

// AccountKind tags which of the two account tables a record lives in.
type AccountKind string

const (
	KindUser     AccountKind = "user"
	KindCustomer AccountKind = "customer"
)

const (
	RoleAdmin           = "Admin"
	RoleRestaurantOwner = "RestaurantOwner"
	RoleCustomer        = "Customer"
)

// Account is the shared shape of User and Customer records.
type Account struct {
	Kind                AccountKind
	ID                  uint64
	Email               string
	Username            string
	PasswordHash        string
	Role                string
	IsVerified          bool
	VerificationToken   sql.NullString
	PasswordResetToken  sql.NullString
	ResetTokenExpiresAt sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// KindForRole returns the table a role belongs to.
func KindForRole(role string) AccountKind {
	if role == RoleCustomer {
		return KindCustomer
	}
	return KindUser
}

// ClaimName is the name embedded in bearer tokens: customers are identified
// by their email, users by their username.
func (a *Account) ClaimName() string {
	if a.Kind == KindCustomer {
		return a.Email
	}
	return a.Username
}

// ResetPending reports whether a password reset token is outstanding.
func (a *Account) ResetPending() bool {
	return a.PasswordResetToken.Valid && a.ResetTokenExpiresAt.Valid
}

// ClearResetToken drops the reset token and its expiry together.
func (a *Account) ClearResetToken() {
	a.PasswordResetToken = sql.NullString{Valid: false}
	a.ResetTokenExpiresAt = sql.NullTime{Valid: false}
}

// SetResetToken stores a reset token and its expiry together.
func (a *Account) SetResetToken(token string, expiresAt time.Time) {
	a.PasswordResetToken = sql.NullString{String: token, Valid: true}
	a.ResetTokenExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
}

// MarkVerified completes email verification and drops the verification token.
func (a *Account) MarkVerified() {
	a.IsVerified = true
	a.VerificationToken = sql.NullString{Valid: false}
}
