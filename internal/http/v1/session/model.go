package session

import (
	profilehttp "github.com/janisto/chatmate/internal/http/v1/profile"
	"github.com/janisto/chatmate/internal/platform/timeutil"
)

// MachineState is one sign-in or sign-up machine.
type MachineState struct {
	Status string  `json:"status"          doc:"Machine phase"             enum:"idle,loading,succeeded,failed" example:"failed"`
	Error  *string `json:"error,omitempty" doc:"Failure message to show"   example:"Username is already in use."`
}

// Credentials are the signed-in principal's tokens.
type Credentials struct {
	PrincipalID  string        `json:"principalId"  doc:"Principal ID"`
	IDToken      string        `json:"idToken"      doc:"Bearer ID token for /profile"`
	RefreshToken string        `json:"refreshToken" doc:"Token to resume the session later"`
	ExpiresAt    timeutil.Time `json:"expiresAt"    doc:"ID token expiry" example:"2024-01-15T11:30:00.000Z"`
}

// Session is a snapshot of one session's observable state.
type Session struct {
	ID          string               `json:"id"                    doc:"Session ID"`
	SignIn      MachineState         `json:"signIn"                doc:"Sign-in machine"`
	SignUp      MachineState         `json:"signUp"                doc:"Sign-up machine"`
	Profile     *profilehttp.Profile `json:"profile,omitempty"     doc:"Current profile, absent when signed out"`
	Credentials *Credentials         `json:"credentials,omitempty" doc:"Present while a principal is signed in"`
}

// PasswordReset reports whether the reset email was sent.
type PasswordReset struct {
	Sent bool `json:"sent" doc:"True when the reset email was sent" example:"true"`
}

// Authorization starts the Google authorization-code flow.
type Authorization struct {
	URL   string `json:"url"   doc:"Google consent page to open"`
	State string `json:"state" doc:"Send back with the code to /federated"`
}
