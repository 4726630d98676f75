package app

import "fmt"

// DomainError is a write-path failure the widget can act on: an HTTP
// status, a stable code, and an optional details payload (the reaction
// palette on a rejected emoji, for instance). Everything else maps to
// a generic server error in mapError.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
