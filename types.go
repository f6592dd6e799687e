package lockr

import (
	"time"

	"github.com/MrEthical07/lockr/api"
)

// State is a step of the authentication state machine.
type State uint8

const (
	StateBootstrapping State = iota
	StateLoggedOut
	StateAwaitingMFA
	StateAwaitingSecretSetup
	StateUnlocking
	StateActive
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateLoggedOut:
		return "logged_out"
	case StateAwaitingMFA:
		return "awaiting_mfa"
	case StateAwaitingSecretSetup:
		return "awaiting_secret_setup"
	case StateUnlocking:
		return "unlocking"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// MFAOutcome is the result of a second-factor submission.
type MFAOutcome uint8

const (
	// MFAFail means no session was established.
	MFAFail MFAOutcome = iota
	// MFANeedSecret means the session is live and the device has no vault secret yet.
	MFANeedSecret
	// MFAReady means the session is live and the device must be unlocked.
	MFAReady
)

func (o MFAOutcome) String() string {
	switch o {
	case MFANeedSecret:
		return "need_secret"
	case MFAReady:
		return "ready"
	default:
		return "fail"
	}
}

// UnlockOutcome is the result of a device unlock attempt.
type UnlockOutcome uint8

const (
	UnlockManualRequired UnlockOutcome = iota
	UnlockBiometric
	UnlockManual
)

// UserProfile is the account profile held in memory.
type UserProfile = api.UserProfile

// Enrollment is the MFA enrolment material shown after registration.
type Enrollment = api.Enrollment

// LoginResult is the outcome of the first factor.
type LoginResult struct {
	MFARequired bool
	UserID      string
}

// SessionInfo is a point-in-time copy of the in-memory session.
type SessionInfo struct {
	Authenticated bool
	User          *UserProfile
	// ExpiresAt is read from the bearer token when it is a JWT. It is
	// informational; refresh is only ever driven by a 401.
	ExpiresAt time.Time
}
