package session

import (
	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
)

// State is the session snapshot handed to readers and listeners. It is a
// deep copy; mutating it never affects the manager.
//
// Invariant: Authenticated is true iff User and Tokens are both present and
// the tokens were unexpired at the last check.
type State struct {
	User          *domain.User
	Tokens        *domain.TokenPair
	Authenticated bool
	Loading       bool
	Err           string
}

func (s State) clone() State {
	return State{
		User:          s.User.Clone(),
		Tokens:        s.Tokens.Clone(),
		Authenticated: s.Authenticated,
		Loading:       s.Loading,
		Err:           s.Err,
	}
}

// record is the persisted layout: one JSON blob of {tokens, user} under a
// fixed storage key.
type record struct {
	Tokens *domain.TokenPair `json:"tokens,omitempty"`
	User   *domain.User      `json:"user,omitempty"`
}
