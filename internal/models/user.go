package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID  `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`

	Email         string  `json:"email"`
	PasswordHash  *string `json:"-"` // nil for accounts that only sign in through Google
	EmailVerified bool    `json:"emailVerified"`
	IsOAuthUser   bool    `json:"isOAuthUser"`
	GoogleID      *string `json:"-"`

	// Identifiers (jti) of refresh tokens that are still honored.
	RefreshTokens []string `json:"-"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserPatch carries the columns UpdateUser may change. Nil fields are left
// untouched.
type UserPatch struct {
	PasswordHash  *string
	EmailVerified *bool
	IsOAuthUser   *bool
	GoogleID      *string
}

type Profile struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Bio         string     `json:"bio,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Address     string     `json:"address,omitempty"`
	City        string     `json:"city,omitempty"`
	State       string     `json:"state,omitempty"`
	Country     string     `json:"country,omitempty"`
	PostalCode  string     `json:"postalCode,omitempty"`
	IsPublic    bool       `json:"isPublic"`
}

type ProfilePatch struct {
	FirstName   *string    `json:"firstName,omitempty"`
	LastName    *string    `json:"lastName,omitempty"`
	AvatarURL   *string    `json:"avatarUrl,omitempty"`
	Bio         *string    `json:"bio,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	Address     *string    `json:"address,omitempty"`
	City        *string    `json:"city,omitempty"`
	State       *string    `json:"state,omitempty"`
	Country     *string    `json:"country,omitempty"`
	PostalCode  *string    `json:"postalCode,omitempty"`
	IsPublic    *bool      `json:"isPublic,omitempty"`
}

// Apply copies every non-nil field of the patch onto p.
func (pp ProfilePatch) Apply(p *Profile) {
	setString(&p.FirstName, pp.FirstName)
	setString(&p.LastName, pp.LastName)
	setString(&p.AvatarURL, pp.AvatarURL)
	setString(&p.Bio, pp.Bio)
	setString(&p.Phone, pp.Phone)
	setString(&p.Gender, pp.Gender)
	setString(&p.Address, pp.Address)
	setString(&p.City, pp.City)
	setString(&p.State, pp.State)
	setString(&p.Country, pp.Country)
	setString(&p.PostalCode, pp.PostalCode)
	if pp.DateOfBirth != nil {
		dob := *pp.DateOfBirth
		p.DateOfBirth = &dob
	}
	if pp.IsPublic != nil {
		p.IsPublic = *pp.IsPublic
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// PublicProfile is what other callers may see about a user.
type PublicProfile struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	City      string    `json:"city,omitempty"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
