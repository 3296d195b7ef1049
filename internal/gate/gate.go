// Package gate implements the shared-password check in front of the UI.
package gate

import (
	"crypto/subtle"

	"github.com/KaramelBytes/csvbot/internal/config"
	"github.com/KaramelBytes/csvbot/internal/session"
)

// Gate compares attempts against one shared secret. There is no lockout and
// no logout: once a session is authorized it stays authorized.
type Gate struct {
	expected []byte
	open     bool
}

// New returns a gate for the expected password. An empty secret is a
// configuration error rather than a gate nobody can pass.
func New(expected string) (*Gate, error) {
	if expected == "" {
		return nil, &config.ConfigurationError{Key: "password"}
	}
	return &Gate{expected: []byte(expected)}, nil
}

// Open returns a gate that authorizes every session.
func Open() *Gate { return &Gate{open: true} }

// IsOpen reports whether the gate is disabled.
func (g *Gate) IsOpen() bool { return g.open }

// IsAuthorized reports the stored flag; an absent flag is false.
func (g *Gate) IsAuthorized(st *session.State) bool {
	if g.open {
		return true
	}
	return st.PasswordCorrect != nil && *st.PasswordCorrect
}

// Enter checks attempt with exact, constant-time equality and records the
// result. The attempt itself is not kept.
func (g *Gate) Enter(st *session.State, attempt string) bool {
	if g.open {
		st.SetPasswordCorrect(true)
		return true
	}
	if g.IsAuthorized(st) {
		return true
	}
	ok := subtle.ConstantTimeCompare([]byte(attempt), g.expected) == 1
	st.SetPasswordCorrect(ok)
	return ok
}

// PromptState says what the password widget should show.
type PromptState struct {
	Show  bool
	Error bool
}

// Prompt derives the widget state: hidden once authorized, with an error
// after a failed attempt.
func (g *Gate) Prompt(st *session.State) PromptState {
	if g.IsAuthorized(st) {
		return PromptState{}
	}
	return PromptState{Show: true, Error: st.PasswordCorrect != nil}
}
