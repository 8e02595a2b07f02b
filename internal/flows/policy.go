package flows

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/stagepass/account"
)

const maxEmailLength = 254

// PasswordPolicy bounds password length in runes.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// FieldError is a request validation failure for one field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateEmail checks the address syntax and returns its normalised form.
// Display names ("Ann <ann@example.com>") are rejected.
func ValidateEmail(raw string) (string, *FieldError) {
	email := account.NormalizeEmail(raw)
	if email == "" {
		return "", &FieldError{Field: "email", Message: "is required"}
	}
	if len(email) > maxEmailLength {
		return "", &FieldError{Field: "email", Message: "is too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@'):], ".") {
		return "", &FieldError{Field: "email", Message: "is not a valid address"}
	}
	return email, nil
}

// Check validates pw against the policy. field names the request field.
func (p PasswordPolicy) Check(field, pw string) *FieldError {
	n := utf8.RuneCountInString(pw)
	switch {
	case pw == "":
		return &FieldError{Field: field, Message: "is required"}
	case n < p.MinLength:
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at least %d characters", p.MinLength)}
	case p.MaxLength > 0 && n > p.MaxLength:
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", p.MaxLength)}
	}
	return nil
}
