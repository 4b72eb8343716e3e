package users

import (
	"strings"

	"github.com/emilythestrangee/lireddit/backend/internal/models"
)

const (
	minUsernameLength = 4
	minPasswordLength = 8
)

// validateRegister reports the first problem with a registration input, or
// nil when the input is acceptable.
func validateRegister(input models.UsernamePasswordInput) []models.FieldError {
	if !strings.Contains(input.Email, "@") {
		return fieldError("email", "Invalid email")
	}
	if len(input.Username) < minUsernameLength {
		return fieldError("username", "username must be at least 4 characters long")
	}
	if strings.Contains(input.Username, "@") {
		return fieldError("username", "username cannot include an @")
	}
	return validatePassword("password", input.Password)
}

func validatePassword(field, password string) []models.FieldError {
	if len(password) < minPasswordLength {
		return fieldError(field, "password must be at least 8 characters long")
	}
	return nil
}

func fieldError(field, message string) []models.FieldError {
	return []models.FieldError{{Field: field, Message: message}}
}
