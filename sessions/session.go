package sessions

import (
	"github.com/jrsteele09/erp-session/users"
)

// Session is the application session obtained from a successful exchange.
// A committed Session has either both fields set or neither.
type Session struct {
	Token string         // Backend session key, sent on every API call
	User  *users.Profile // Profile of the signed in user
}

// IsZero reports whether the session is empty
func (s Session) IsZero() bool {
	return s.Token == "" && s.User == nil
}

// Clone returns a copy that shares nothing with s
func (s Session) Clone() Session {
	return Session{Token: s.Token, User: s.User.Clone()}
}

// Snapshot is the read-only view handed to subscribers after a mutation.
type Snapshot struct {
	Session     Session
	Initialized bool
}

// Authenticated reports whether the snapshot holds a session. Unlike
// State.IsAuthenticated it does not consult the store.
func (s Snapshot) Authenticated() bool {
	return s.Session.Token != "" && s.Session.User != nil
}
