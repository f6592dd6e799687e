package lockr

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/MrEthical07/lockr/api"
)

// DisplayMessage renders err for the user. Authentication failures are
// deliberately generic.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "Please fill in all fields."
	case errors.Is(err, ErrSecretTooShort):
		return "Master password must be at least 8 characters."
	case errors.Is(err, ErrSecretMismatch):
		return "Passwords do not match."
	case errors.Is(err, ErrAuthenticationFailed):
		return "Authentication failed. Please try again."
	case errors.Is(err, ErrManualUnlockRequired):
		return "Enter your master password to unlock."
	case errors.Is(err, ErrMFAEnrollmentRequired):
		return "Two-factor authentication must be set up for this account."
	case errors.Is(err, ErrOperationInProgress):
		return "Please wait for the current request to finish."
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrInvalidTransition):
		return "Your session has ended. Please sign in again."
	case errors.Is(err, ErrDeviceIdentity), errors.Is(err, ErrSecretStorage):
		return "Secure storage is unavailable on this device."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Check your connection and try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return "Too many attempts. Please wait and try again."
		}
		if apiErr.StatusCode >= 500 {
			return "The server is unavailable. Please try again later."
		}
		return "Request failed."
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "The request timed out. Check your connection and try again."
	}
	return "Network error. Check your connection and try again."
}
