package session

// SessionOutput carries a session snapshot.
type SessionOutput struct {
	Body Session
}

// SessionCreateOutput for POST /sessions (201 Created)
type SessionCreateOutput struct {
	Location string `header:"Location" doc:"URL of the created session"`
	Body     Session
}

// PasswordResetOutput for POST /sessions/{id}/password-reset
type PasswordResetOutput struct {
	Body PasswordReset
}

// AuthorizeOutput for GET /sessions/{id}/federated/authorize
type AuthorizeOutput struct {
	Body Authorization
}
