package session

// SessionPathInput identifies a session.
type SessionPathInput struct {
	ID string `path:"id" doc:"Session ID" example:"d1b2c3d4e5f6g7h8i9j09f1c2b7e4d3a45c6b8e0f1a2d3c4b5e6"`
}

// SessionCreateInput for POST /sessions. The body may be omitted.
type SessionCreateInput struct {
	Body *struct {
		RefreshToken string `json:"refreshToken,omitempty" doc:"Resume the principal this refresh token was issued to"`
	}
}

// SignUpInput for POST /sessions/{id}/sign-up. Field rules are enforced by the
// coordinator so that its messages reach the client unchanged.
type SignUpInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Email            string  `json:"email"                      required:"false" doc:"Email address"            example:"alice@example.com"`
		Password         string  `json:"password"                   required:"false" doc:"Password"                 example:"s3cretpass"`
		Username         string  `json:"username"                   required:"false" doc:"Unique username"          example:"alice_w"`
		BioLink          *string `json:"bioLink,omitempty"                           doc:"Link shown under the bio" example:"https://alice.example.com"`
		Image            []byte  `json:"image,omitempty"                             doc:"Profile image bytes (base64 in JSON)"`
		ImageContentType string  `json:"imageContentType,omitempty"                  doc:"Image media type"         example:"image/png"`
	}
}

// SignInInput for POST /sessions/{id}/sign-in
type SignInInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Email    string `json:"email"    required:"false" doc:"Email address" example:"alice@example.com"`
		Password string `json:"password" required:"false" doc:"Password"      example:"s3cretpass"`
	}
}

// FederatedInput for POST /sessions/{id}/federated. Exactly one of idToken or
// code is expected; code requires server-side OAuth configuration.
type FederatedInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		IDToken  string `json:"idToken,omitempty"  doc:"Google ID token"`
		Code     string `json:"code,omitempty"     doc:"Google OAuth authorization code"`
		State    string `json:"state,omitempty"    doc:"State returned by the authorize call; required with code"`
		Action   string `json:"action"             doc:"Which flow to run" enum:"signIn,signUp" example:"signIn"`
		Username string `json:"username,omitempty" doc:"Username for signUp" example:"alice_w"`
	}
}

// PasswordResetInput for POST /sessions/{id}/password-reset
type PasswordResetInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Email string `json:"email" required:"false" doc:"Email address" example:"alice@example.com"`
	}
}

// ResetInput for POST /sessions/{id}/reset
type ResetInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body *struct {
		Machine string `json:"machine,omitempty" doc:"Machine to reset; both when omitted" enum:"signIn,signUp"`
	}
}
