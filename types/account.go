package types

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization level of an account.
type Role string

// Supported roles.
const (
	RoleUser         Role = "user"
	RoleCollector    Role = "collector"
	RoleOrganization Role = "organization"
	RoleAdmin        Role = "admin"
)

// SignupRoles are the roles an account may choose at registration.
// Admin accounts are only created through seeding.
var SignupRoles = []Role{RoleUser, RoleCollector, RoleOrganization}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCollector, RoleOrganization, RoleAdmin:
		return true
	default:
		return false
	}
}

// AllowedAtSignup reports whether r may be chosen through public registration.
func (r Role) AllowedAtSignup() bool {
	for _, allowed := range SignupRoles {
		if r == allowed {
			return true
		}
	}
	return false
}

// Account represents a marketplace participant.
// It contains identity, contact details, role, and audit metadata.
type Account struct {
	// ID is the unique identifier of the account.
	ID uuid.UUID `json:"id" db:"id"`

	// Name is the account holder's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the unique login address, stored lower-cased.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the account password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Role determines which operations the account may perform.
	Role Role `json:"role" db:"role"`

	// Phone is the contact phone number.
	Phone string `json:"phone" db:"phone"`

	// Address is the postal or pickup address.
	Address string `json:"address" db:"address"`

	// OrganizationName is set only for organization accounts.
	OrganizationName *string `json:"organizationName,omitempty" db:"organization_name"`

	// IsActive is false for deactivated accounts, which can no longer log in.
	IsActive bool `json:"isActive" db:"is_active"`

	// ProfilePicture is a blob reference to the uploaded profile image.
	ProfilePicture string `json:"profilePicture,omitempty" db:"profile_picture"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile change.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Public returns the projection of the account that is safe to return to clients.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:               a.ID,
		Name:             a.Name,
		Email:            a.Email,
		Role:             a.Role,
		Phone:            a.Phone,
		Address:          a.Address,
		OrganizationName: a.OrganizationName,
		IsActive:         a.IsActive,
		ProfilePicture:   a.ProfilePicture,
		CreatedAt:        a.CreatedAt,
	}
}

// PublicAccount is the client-facing view of an Account. It has no password field.
type PublicAccount struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             Role      `json:"role"`
	Phone            string    `json:"phone"`
	Address          string    `json:"address"`
	OrganizationName *string   `json:"organizationName,omitempty"`
	IsActive         bool      `json:"isActive"`
	ProfilePicture   string    `json:"profilePicture,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AccountSummary is the contact card of an account embedded in listing views
// for the owner, booker, collector, or buyer of a listing.
type AccountSummary struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	Address string    `json:"address,omitempty"`
}
