package authsvc

import (
	"fmt"
	"unicode"

	"github.com/insforge/core/internal/apperror"
)

// PasswordPolicy is the configurable policy register validates new
// passwords against, per spec.md §4.6.
type PasswordPolicy struct {
	MinLength      int
	RequireDigit   bool
	RequireLower   bool
	RequireUpper   bool
	RequireSpecial bool
}

// DefaultPasswordPolicy mirrors the example request in spec.md §8 ("Abcdef1!").
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:      8,
	RequireDigit:   true,
	RequireLower:   true,
	RequireUpper:   true,
	RequireSpecial: true,
}

// Validate checks password against p, returning apperror.Invalid naming the
// first unmet rule.
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return apperror.Invalid(fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}

	var hasDigit, hasLower, hasUpper, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	switch {
	case p.RequireDigit && !hasDigit:
		return apperror.Invalid("password must contain at least one digit")
	case p.RequireLower && !hasLower:
		return apperror.Invalid("password must contain at least one lowercase letter")
	case p.RequireUpper && !hasUpper:
		return apperror.Invalid("password must contain at least one uppercase letter")
	case p.RequireSpecial && !hasSpecial:
		return apperror.Invalid("password must contain at least one special character")
	}

	return nil
}
