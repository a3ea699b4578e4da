package identity

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleCodeExchanger turns an OAuth authorization code into the Google ID token
// that federated sign-in expects.
type GoogleCodeExchanger struct {
	cfg *oauth2.Config
}

// NewGoogleCodeExchanger uses Google's endpoints unless endpoint is non-nil.
func NewGoogleCodeExchanger(clientID, clientSecret, redirectURL string, endpoint *oauth2.Endpoint) *GoogleCodeExchanger {
	ep := google.Endpoint
	if endpoint != nil {
		ep = *endpoint
	}
	return &GoogleCodeExchanger{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     ep,
	}}
}

// AuthCodeURL returns the consent URL a client should open.
func (g *GoogleCodeExchanger) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange redeems code and returns the id_token from the token response.
func (g *GoogleCodeExchanger) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &Error{Kind: ErrInvalidToken, Code: "INVALID_GRANT",
			Message: providerErrors["INVALID_IDP_RESPONSE"].message, cause: err}
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", &Error{Kind: ErrInvalidToken, Code: "MISSING_ID_TOKEN",
			Message: fmt.Sprintf("%s (no id_token returned)", providerErrors["INVALID_IDP_RESPONSE"].message)}
	}
	return idToken, nil
}
