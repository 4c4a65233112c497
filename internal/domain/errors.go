package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError with the same code, so callers can write
// errors.Is(err, domain.ErrVerificationFailed).
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error, retryable bool) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsRetryable reports whether err is a DomainError marked retryable.
func IsRetryable(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Retryable
}

// Common domain errors
var (
	ErrInvalidCredentials = &DomainError{
		Code:      "INVALID_CREDENTIALS",
		Message:   "Login and password do not match",
		Retryable: false,
	}

	ErrExpiredAccount = &DomainError{
		Code:      "EXPIRED_ACCOUNT",
		Message:   "Portal password has expired",
		Retryable: false,
	}

	ErrSignOnFailed = &DomainError{
		Code:      "SIGN_ON_FAILED",
		Message:   "Failed to sign on to the portal",
		Retryable: true,
	}

	ErrCatalogFetch = &DomainError{
		Code:      "CATALOG_FETCH",
		Message:   "Failed to fetch the download catalog",
		Retryable: true,
	}

	ErrCatalogParse = &DomainError{
		Code:      "CATALOG_PARSE",
		Message:   "Failed to parse the download catalog",
		Retryable: false,
	}

	ErrMalformedName = &DomainError{
		Code:      "MALFORMED_NAME",
		Message:   "File name does not follow the <entity>_<rest>.<suffix> convention",
		Retryable: false,
	}

	ErrLayout = &DomainError{
		Code:      "LAYOUT_FAILED",
		Message:   "Failed to prepare the local directory layout",
		Retryable: false,
	}

	ErrFileNotFound = &DomainError{
		Code:      "FILE_NOT_FOUND",
		Message:   "File does not exist",
		Retryable: false,
	}

	ErrDownloadFailed = &DomainError{
		Code:      "DOWNLOAD_FAILED",
		Message:   "Failed to download file",
		Retryable: true,
	}

	ErrVerificationFailed = &DomainError{
		Code:      "VERIFICATION_FAILED",
		Message:   "Downloaded file never matched the catalog checksum",
		Retryable: false,
	}

	ErrConversionFailed = &DomainError{
		Code:      "CONVERSION_FAILED",
		Message:   "Converter exited with a nonzero status",
		Retryable: false,
	}

	ErrToolNotFound = &DomainError{
		Code:      "TOOL_NOT_FOUND",
		Message:   "Required executable not found",
		Retryable: false,
	}

	ErrStorageFailed = &DomainError{
		Code:      "STORAGE_FAILED",
		Message:   "Failed to store file",
		Retryable: true,
	}

	ErrLocked = &DomainError{
		Code:      "BASE_LOCKED",
		Message:   "Another run holds the base directory lock",
		Retryable: false,
	}
)

// IsAuthError reports whether err means the portal rejected the credentials.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrExpiredAccount)
}
