package lockr

import "errors"

var (
	// ErrInvalidInput is returned for empty credentials or identifiers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSecretTooShort is returned when a new vault secret is under the minimum length.
	ErrSecretTooShort = errors.New("vault secret too short")
	// ErrSecretMismatch is returned when the secret and its confirmation differ.
	ErrSecretMismatch = errors.New("vault secret confirmation mismatch")

	// ErrAuthenticationFailed covers rejected codes, wrong secrets and
	// declined challenges. The cause is deliberately not exposed.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrManualUnlockRequired is returned by Unlock when the device challenge
	// could not be satisfied and the secret must be typed.
	ErrManualUnlockRequired = errors.New("manual unlock required")
	// ErrMFAEnrollmentRequired is returned when login did not ask for MFA.
	ErrMFAEnrollmentRequired = errors.New("mfa enrollment required")

	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrNotAuthenticated    = errors.New("not authenticated")

	// ErrDeviceIdentity wraps failures reading or writing the device identity.
	ErrDeviceIdentity = errors.New("device identity storage failure")
	// ErrSecretStorage wraps failures reading or writing the vault secret.
	ErrSecretStorage = errors.New("vault secret storage failure")
)
