package lockr

import "fmt"

// transitions lists every allowed move. Logout reaches LoggedOut from any
// settled state; expiry drops a live session back to AwaitingMFA.
var transitions = map[State][]State{
	StateBootstrapping:       {StateLoggedOut, StateAwaitingMFA},
	StateLoggedOut:           {StateLoggedOut, StateAwaitingMFA, StateAwaitingSecretSetup, StateUnlocking},
	StateAwaitingMFA:         {StateLoggedOut, StateAwaitingMFA, StateAwaitingSecretSetup, StateUnlocking},
	StateAwaitingSecretSetup: {StateLoggedOut, StateAwaitingMFA, StateActive},
	StateUnlocking:           {StateLoggedOut, StateAwaitingMFA, StateActive},
	StateActive:              {StateLoggedOut, StateAwaitingMFA},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// sessionStates hold a bearer token.
func sessionState(s State) bool {
	return s == StateAwaitingSecretSetup || s == StateUnlocking || s == StateActive
}
