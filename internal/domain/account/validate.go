package account

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
)

const (
	RegistrationCreate = "create"
	RegistrationJoin   = "join"

	minPasswordLen = 8
	maxUsernameLen = 150
)

var (
	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
	commonPasswords = map[string]bool{"password": true, "123456": true, "qwerty": true, "letmein": true}
)

// RegistrationRequest is the public sign-up form. Tenant selects the tenant
// to join by id or exact name; TenantName names the tenant to create.
type RegistrationRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	PasswordConfirm  string `json:"password_confirm"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	RegistrationType string `json:"registration_type"`
	Tenant           string `json:"tenant"`
	TenantName       string `json:"tenant_name"`
	Specialization   string `json:"specialization"`
	Role             string `json:"role"`
}

func (r *RegistrationRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.Tenant = strings.TrimSpace(r.Tenant)
	r.TenantName = strings.TrimSpace(r.TenantName)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.RegistrationType = strings.ToLower(strings.TrimSpace(r.RegistrationType))
}

// Validate reports every field-level problem at once. Uniqueness checks that
// need storage happen later, inside the registration transaction.
func (r *RegistrationRequest) Validate() *apperr.ValidationError {
	v := apperr.NewValidation()
	validateUsername(v, r.Username)
	validateEmail(v, r.Email)
	validatePassword(v, r.Password, r.PasswordConfirm)

	switch r.RegistrationType {
	case RegistrationCreate:
		if r.TenantName == "" {
			v.Add("tenant_name", "Please provide a company name.")
		}
	case RegistrationJoin:
		if r.Tenant == "" {
			v.Add("tenant", "Please select a company to join.")
		}
		if r.Role == RoleAdmin {
			v.Add("role", "The admin role cannot be requested when joining a company.")
		} else if r.Role != "" && !JoinRoles[r.Role] {
			v.Add("role", "Unknown role.")
		}
	default:
		v.Add("registration_type", "Choose either join or create.")
	}
	return v
}

func validateUsername(v *apperr.ValidationError, username string) {
	switch {
	case username == "":
		v.Add("username", "This field is required.")
	case len(username) > maxUsernameLen:
		v.Add("username", "Username must be at most 150 characters.")
	case !usernamePattern.MatchString(username):
		v.Add("username", "Username may contain only letters, digits and @/./+/-/_ characters.")
	}
}

func validateEmail(v *apperr.ValidationError, email string) {
	if email == "" {
		v.Add("email", "This field is required.")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.Add("email", "Enter a valid email address.")
	}
}

func validatePassword(v *apperr.ValidationError, password, confirm string) {
	if password == "" {
		v.Add("password", "This field is required.")
		return
	}
	if password != confirm {
		v.Add("password_confirm", "Passwords do not match. Please re-enter.")
		return
	}
	if commonPasswords[strings.ToLower(password)] {
		v.Add("password", "This password is too common. Please choose a stronger password.")
	}
	if len(password) < minPasswordLen {
		v.Add("password", "Password must be at least 8 characters long.")
	}
}
