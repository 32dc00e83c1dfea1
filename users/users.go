package users

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jrsteele09/erp-session/internal/utils"
)

// RoleType names a coarse role derived from the profile flags
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Superuser on the ERP backend
	RoleStaff RoleType = "staff" // Staff member, implied by admin
)

// Profile is the user as returned by the backend exchange endpoint. It is
// attached to a session as a whole and replaced wholesale on the next login.
type Profile struct {
	ID          int64  `json:"id"`                     // Backend user ID
	Email       string `json:"email"`                  // User's email address
	FirstName   string `json:"first_name"`             // First name of the user
	LastName    string `json:"last_name"`              // Last name of the user
	Username    string `json:"username,omitempty"`     // Backend username, usually the email
	Picture     string `json:"picture,omitempty"`      // Avatar URL from the identity provider
	IsStaff     *bool  `json:"is_staff,omitempty"`     // Optional staff flag
	IsSuperuser *bool  `json:"is_superuser,omitempty"` // Optional admin flag
}

// Validate checks the fields a session cannot live without.
func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("profile is required")
	}
	if p.ID == 0 {
		return fmt.Errorf("profile id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("profile email is required")
	}
	return nil
}

// Clone returns a deep copy so holders cannot mutate a shared profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.IsStaff != nil {
		c.IsStaff = utils.Ptr(*p.IsStaff)
	}
	if p.IsSuperuser != nil {
		c.IsSuperuser = utils.Ptr(*p.IsSuperuser)
	}
	return &c
}

// HasRole reports whether the profile carries role. Unknown roles are never held.
func (p *Profile) HasRole(role RoleType) bool {
	if p == nil {
		return false
	}
	switch role {
	case RoleAdmin:
		return utils.Value(p.IsSuperuser)
	case RoleStaff:
		return utils.Value(p.IsStaff) || utils.Value(p.IsSuperuser)
	default:
		return false
	}
}

// Initials returns the upper-cased first letters of the first and last
// name, or "U" when neither is set.
func (p *Profile) Initials() string {
	if p == nil {
		return "U"
	}
	initials := firstRune(p.FirstName) + firstRune(p.LastName)
	if initials == "" {
		return "U"
	}
	return strings.ToUpper(initials)
}

// DisplayName is the name used in greetings: first name, then email, then "Student".
func (p *Profile) DisplayName() string {
	if p == nil {
		return "Student"
	}
	if name := strings.TrimSpace(p.FirstName); name != "" {
		return name
	}
	if p.Email != "" {
		return p.Email
	}
	return "Student"
}

// FullName joins first and last name.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func firstRune(s string) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return ""
	}
	return string(r)
}
