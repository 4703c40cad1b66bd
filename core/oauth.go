package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
)

const (
	googleIssuer     = "https://accounts.google.com"
	oauthSessionName = "sa_oauth"
)

// GoogleOAuth implements the Google sign-in flow: redirect out with a state
// nonce, then exchange the callback code, verify the ID token, find or
// create the user by Google subject id and issue a first-party token.
type GoogleOAuth struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	store    *sessions.CookieStore
	users    UserRepository
	codec    *TokenCodec
	redirect string
}

// NewGoogleOAuth builds the flow, or returns (nil, nil) when no client id is
// configured so the routes can be skipped cleanly.
func NewGoogleOAuth(ctx context.Context, cfg Config, store *sessions.CookieStore, users UserRepository, codec *TokenCodec) (*GoogleOAuth, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}

	return &GoogleOAuth{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleCallbackURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.GoogleClientID}),
		store:    store,
		users:    users,
		codec:    codec,
		redirect: cfg.LoginRedirectURL,
	}, nil
}

// LoginHandler redirects to Google with a state nonce held in a cookie.
func (g *GoogleOAuth) LoginHandler(c *gin.Context) {
	state := randomHex(16)

	session, err := g.store.Get(c.Request, oauthSessionName)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "session error")
		return
	}
	session.Values["state"] = state
	session.Options = &sessions.Options{Path: "/", MaxAge: 600, HttpOnly: true}
	if err := session.Save(c.Request, c.Writer); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to persist session")
		return
	}

	c.Redirect(http.StatusFound, g.oauth.AuthCodeURL(state))
}

// CallbackHandler validates state, exchanges the code, verifies the ID token
// and redirects to the frontend with a first-party bearer token.
func (g *GoogleOAuth) CallbackHandler(c *gin.Context) {
	session, err := g.store.Get(c.Request, oauthSessionName)
	if err != nil {
		respondError(c, http.StatusBadRequest, "session error")
		return
	}
	expected, _ := session.Values["state"].(string)
	if expected == "" || c.Query("state") != expected {
		respondError(c, http.StatusBadRequest, "invalid oauth state")
		return
	}
	// State is single-use.
	delete(session.Values, "state")
	_ = session.Save(c.Request, c.Writer)

	ctx := c.Request.Context()
	token, err := g.oauth.Exchange(ctx, c.Query("code"))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "google code exchange failed")
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		respondError(c, http.StatusUnauthorized, "google response missing id token")
		return
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "google id token rejected")
		return
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		respondError(c, http.StatusUnauthorized, "google id token claims unreadable")
		return
	}

	user, err := g.findOrCreate(ctx, idToken.Subject, claims.Name, claims.Email)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to resolve google user")
		return
	}

	bearer, err := g.codec.Issue(user.ID, user.Role)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to issue token")
		return
	}

	c.Redirect(http.StatusFound, g.redirect+"?token="+url.QueryEscape(bearer))
}

func (g *GoogleOAuth) findOrCreate(ctx context.Context, googleID, name, email string) (*UserRecord, error) {
	u, err := g.users.FindByGoogleID(ctx, googleID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if name == "" {
		name = email
	}
	return g.users.CreateGoogleUser(ctx, name, email, googleID)
}
