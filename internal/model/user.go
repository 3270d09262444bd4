// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the canonical identity record.
//
// A user is created either at registration (password credential) or at the
// first Google login (external credential). A later Google login that shares
// the email of a password account links both into one row; see Credential.
//
// The credential is never serialized: handlers expose users through JSON and
// neither the password hash nor the provider id belongs in a response.
type User struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	AvatarURL  *string    `json:"avatarUrl"`
	Credential Credential `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// PublicUser is the subset of a user embedded in posts and comments.
type PublicUser struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Principal is the identity resolved from a verified bearer token. It is
// built per request (or per socket connection) and never persisted, so its
// fields reflect the user as it was when the token was minted.
type Principal struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

// StringPtr returns nil for the empty string and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, treating nil as "".
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ExternalProfile is what an OAuth provider tells us about a user after a
// successful login. Emails may hold several addresses; the first is primary.
// EmailVerified is the provider's claim that the user controls that address;
// without it the profile is never linked to an existing account.
type ExternalProfile struct {
	ProviderID    string
	Emails        []string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}
