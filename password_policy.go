package auth

import (
	"fmt"
	"unicode"
)

// PasswordPolicy is enforced by the store when an account is created with a
// local credential.
type PasswordPolicy struct {
	MinLength          int
	RequireDigit       bool
	RequireLowercase   bool
	RequireUppercase   bool
	RequireNonAlphanum bool
	RequireUniqueChars int
}

// DefaultPasswordPolicy mirrors the usual identity framework defaults
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:          6,
		RequireDigit:       true,
		RequireLowercase:   true,
		RequireUppercase:   true,
		RequireNonAlphanum: true,
		RequireUniqueChars: 1,
	}
}

// Check returns every rule password violates, in a stable order. An empty
// result means the password is acceptable.
func (p PasswordPolicy) Check(password string) []string {
	var reasons []string

	if len([]rune(password)) < p.MinLength {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength))
	}

	var hasDigit, hasLower, hasUpper, hasOther bool
	unique := make(map[rune]struct{})
	for _, r := range password {
		unique[r] = struct{}{}
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasOther = true
		}
	}

	if p.RequireNonAlphanum && !hasOther {
		reasons = append(reasons, "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !hasDigit {
		reasons = append(reasons, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLowercase && !hasLower {
		reasons = append(reasons, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUppercase && !hasUpper {
		reasons = append(reasons, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	if p.RequireUniqueChars > 1 && len(unique) < p.RequireUniqueChars {
		reasons = append(reasons, fmt.Sprintf("Passwords must use at least %d different characters.", p.RequireUniqueChars))
	}

	return reasons
}
