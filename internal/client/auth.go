package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.Identity, error) {
	body, err := jsonBody(req)
	if err != nil {
		return models.Identity{}, err
	}
	var id models.Identity
	err = c.do(ctx, call{
		op:          "auth.register",
		method:      http.MethodPost,
		path:        "/register",
		body:        body,
		contentType: "application/json",
		hint:        apierr.KindConflict,
	}, &id)
	return id, err
}

// Login exchanges a username and password for a bearer token. The form is
// url-encoded, as OAuth2 password flow expects.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (models.Token, error) {
	form := url.Values{}
	form.Set("username", req.Username)
	form.Set("password", req.Password)
	var tok models.Token
	err := c.do(ctx, call{
		op:          "auth.login",
		method:      http.MethodPost,
		path:        "/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &tok)
	if err != nil {
		return models.Token{}, err
	}
	if tok.AccessToken == "" {
		return models.Token{}, &apierr.Error{Kind: apierr.KindUnexpected, Op: "auth.login", Message: "empty access token"}
	}
	return tok, nil
}

// Me fetches the identity of the current session.
func (c *Client) Me(ctx context.Context) (models.Identity, error) {
	var id models.Identity
	err := c.do(ctx, call{op: "auth.me", method: http.MethodGet, path: "/me", auth: true}, &id)
	return id, err
}

// Identify fetches the identity behind token, which need not be the session's.
func (c *Client) Identify(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, apierr.New("auth.me", apierr.KindUnauthenticated, "")
	}
	var id models.Identity
	err := c.do(ctx, call{op: "auth.me", method: http.MethodGet, path: "/me", token: token}, &id)
	return id, err
}

func (c *Client) Balance(ctx context.Context) (float64, error) {
	var b models.Balance
	if err := c.do(ctx, call{op: "auth.balance", method: http.MethodGet, path: "/balance", auth: true}, &b); err != nil {
		return 0, err
	}
	return b.Balance, nil
}
