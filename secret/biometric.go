package secret

import "context"

// Prompt is shown by the platform during a challenge.
type Prompt struct {
	Message               string
	CancelLabel           string
	DisableDeviceFallback bool
}

// Authenticator is the platform biometric/PIN capability.
type Authenticator interface {
	HasHardware(ctx context.Context) (bool, error)
	IsEnrolled(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, p Prompt) (bool, error)
}

// Available reports whether a challenge can be presented at all. Errors count
// as unavailable.
func Available(ctx context.Context, a Authenticator) bool {
	if a == nil {
		return false
	}
	hw, err := a.HasHardware(ctx)
	if err != nil || !hw {
		return false
	}
	enrolled, err := a.IsEnrolled(ctx)
	return err == nil && enrolled
}

// NoHardware is an Authenticator for hosts without biometrics.
type NoHardware struct{}

func (NoHardware) HasHardware(context.Context) (bool, error) { return false, nil }
func (NoHardware) IsEnrolled(context.Context) (bool, error)  { return false, nil }
func (NoHardware) Authenticate(context.Context, Prompt) (bool, error) {
	return false, nil
}
