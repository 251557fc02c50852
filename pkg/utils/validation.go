package utils

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes, so longer passwords are refused.
	MaxPasswordBytes = 72
	MaxNameLength    = 50
	MaxBioLength     = 500
)

var (
	upperRegex   = regexp.MustCompile(`[A-Z]`)
	lowerRegex   = regexp.MustCompile(`[a-z]`)
	digitRegex   = regexp.MustCompile(`[0-9]`)
	specialRegex = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validator collects field errors so a request can report all of them at once.
type Validator struct {
	errs []*ValidationError
}

func (v *Validator) Add(field, message string) {
	v.errs = append(v.errs, &ValidationError{Field: field, Message: message})
}

// Check adds err when it is non-nil.
func (v *Validator) Check(err *ValidationError) {
	if err != nil {
		v.errs = append(v.errs, err)
	}
}

func (v *Validator) Valid() bool {
	return len(v.errs) == 0
}

// Messages returns the collected messages in the order they were added.
func (v *Validator) Messages() []string {
	out := make([]string, 0, len(v.errs))
	for _, e := range v.errs {
		out = append(out, e.Message)
	}
	return out
}

// Sanitize trims surrounding whitespace and drops control characters.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// NormalizeEmail lower-cases and trims email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(Sanitize(email))
}

func ValidateEmail(email string) *ValidationError {
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	addr, err := mail.ParseAddress(email)
	// ParseAddress accepts "Name <addr>"; only a bare address is valid here.
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return &ValidationError{Field: "email", Message: "Invalid email address"}
	}
	return nil
}

// PasswordProblems lists every complexity rule password breaks. An empty
// result means the password is acceptable.
func PasswordProblems(password string) []string {
	var problems []string
	if len(password) < MinPasswordLength {
		problems = append(problems, "Password must be at least 8 characters long")
	}
	if len(password) > MaxPasswordBytes {
		problems = append(problems, "Password must be at most 72 bytes long")
	}
	if !upperRegex.MatchString(password) {
		problems = append(problems, "Password must contain at least one uppercase letter")
	}
	if !lowerRegex.MatchString(password) {
		problems = append(problems, "Password must contain at least one lowercase letter")
	}
	if !digitRegex.MatchString(password) {
		problems = append(problems, "Password must contain at least one number")
	}
	if !specialRegex.MatchString(password) {
		problems = append(problems, "Password must contain at least one special character")
	}
	return problems
}

// ValidatePassword adds one error per broken rule under field.
func (v *Validator) ValidatePassword(field, password string) {
	for _, p := range PasswordProblems(password) {
		v.Add(field, p)
	}
}

// ValidateName checks a required person name. label is used in messages,
// e.g. "First name".
func ValidateName(field, label, name string) *ValidationError {
	if name == "" {
		return &ValidationError{Field: field, Message: label + " is required"}
	}
	if len([]rune(name)) > MaxNameLength {
		return &ValidationError{Field: field, Message: label + " must be at most 50 characters long"}
	}
	return nil
}

func ValidateBio(bio string) *ValidationError {
	if len([]rune(bio)) > MaxBioLength {
		return &ValidationError{Field: "bio", Message: "Bio must be less than 500 characters"}
	}
	return nil
}
