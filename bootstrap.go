package lockr

import "context"

// Step names the screen a state maps to.
type Step string

const (
	StepLogin       Step = "login"
	StepMFA         Step = "mfa"
	StepSecretSetup Step = "secret-setup"
	StepUnlock      Step = "unlock"
	StepVault       Step = "vault"
)

// Route is where the host should navigate. UserID is set for StepMFA.
type Route struct {
	Step   Step
	UserID string
}

// BootstrapRouter decides the first screen on process start.
type BootstrapRouter struct {
	c *Controller
}

// NewBootstrapRouter returns a router over c.
func NewBootstrapRouter(c *Controller) *BootstrapRouter {
	return &BootstrapRouter{c: c}
}

// Start bootstraps the controller and returns the route for the resulting
// state. A known device always routes to MFA.
func (r *BootstrapRouter) Start(ctx context.Context) (Route, error) {
	state, err := r.c.Bootstrap(ctx)
	if err != nil {
		return Route{Step: StepLogin}, err
	}
	return r.route(state), nil
}

// Current returns the route for the controller's present state.
func (r *BootstrapRouter) Current() Route {
	return r.route(r.c.State())
}

func (r *BootstrapRouter) route(s State) Route {
	step := RouteFor(s)
	if step == StepMFA {
		return Route{Step: step, UserID: r.c.PendingUserID()}
	}
	return Route{Step: step}
}

// RouteFor maps a state to its step. Bootstrapping and LoggedOut both map
// to login.
func RouteFor(s State) Step {
	switch s {
	case StateAwaitingMFA:
		return StepMFA
	case StateAwaitingSecretSetup:
		return StepSecretSetup
	case StateUnlocking:
		return StepUnlock
	case StateActive:
		return StepVault
	default:
		return StepLogin
	}
}
