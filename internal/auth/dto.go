package auth

import (
	"strings"

	errors "github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/core/common/validation"
)

// LoginDTO is the sign-in form.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// ReturnTo is where the client wanted to go before being sent to sign-in.
	ReturnTo string `json:"return_to,omitempty"`
}

// Normalize trims the identifier. The password is left exactly as typed.
func (d *LoginDTO) Normalize() {
	d.Email = strings.TrimSpace(d.Email)
	d.ReturnTo = strings.TrimSpace(d.ReturnTo)
}

// Validate checks the form shape only; credentials are checked by the
// provider, so a malformed address is still sent there and rejected as
// invalid credentials.
func (d LoginDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().MaxLength(254)
	v.Field("password", d.Password).Required()
	return v.Validate()
}
