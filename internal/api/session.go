package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tweetmap/internal/auth"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
)

type sessionKey struct{}

// SessionMiddleware resolves the caller's session once per request and
// stores it in the request context.
func SessionMiddleware(m *auth.Manager) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		r := &http.Request{Header: http.Header{}}
		if v := ctx.Header("Authorization"); v != "" {
			r.Header.Set("Authorization", v)
		}
		if v := ctx.Header("Cookie"); v != "" {
			r.Header.Set("Cookie", v)
		}
		next(huma.WithValue(ctx, sessionKey{}, m.SessionFrom(r)))
	}
}

// SessionFromContext returns the session resolved by SessionMiddleware.
// Without the middleware every caller is anonymous.
func SessionFromContext(ctx context.Context) auth.Session {
	if s, ok := ctx.Value(sessionKey{}).(auth.Session); ok {
		return s
	}
	return auth.Session{}
}

// RequireSession returns a 401 unless the caller is signed in.
func RequireSession(ctx context.Context) error {
	s := SessionFromContext(ctx)
	if s.Authenticated() {
		return nil
	}
	if s.Err != nil {
		return huma.Error401Unauthorized("session invalid or expired")
	}
	return huma.Error401Unauthorized("sign in required")
}

type SessionBody struct {
	Authenticated bool           `json:"authenticated" doc:"Whether a user is signed in"`
	Loading       bool           `json:"loading" doc:"Whether the identity is still being resolved"`
	User          *auth.Identity `json:"user,omitempty" doc:"Signed-in user"`
	Error         string         `json:"error,omitempty" doc:"Session resolution failure"`
}

type LoginBody struct {
	Username string `json:"username" minLength:"1" doc:"Login name"`
	Password string `json:"password" minLength:"1" doc:"Password"`
}

type LoginOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      struct {
		Token   string    `json:"token" doc:"Bearer token"`
		Expires time.Time `json:"expires" doc:"Token expiry"`
	}
}

type LogoutOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      MessageBody
}

// RegisterSession registers the session and login routes.
func (h *APIHandler) RegisterSession(api huma.API) {
	huma.Get(api, "/api/v1/session", h.GetSession, huma.OperationTags("auth"))
	huma.Post(api, "/api/v1/auth/login", h.Login, huma.OperationTags("auth"))
	huma.Post(api, "/api/v1/auth/logout", h.Logout, huma.OperationTags("auth"))
}

func (h *APIHandler) GetSession(ctx context.Context, input *struct{}) (*struct{ Body SessionBody }, error) {
	s := SessionFromContext(ctx)
	body := SessionBody{Authenticated: s.Authenticated(), Loading: s.Loading, User: s.User}
	if s.Err != nil {
		body.Error = s.Err.Error()
		body.User = nil
	}
	return &struct{ Body SessionBody }{Body: body}, nil
}

func (h *APIHandler) Login(ctx context.Context, input *struct{ Body LoginBody }) (*LoginOutput, error) {
	if h.svc.Auth == nil {
		return nil, huma.Error501NotImplemented("login is not configured")
	}
	token, exp, err := h.svc.Auth.Login(input.Body.Username, input.Body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logging.Info().Str("user", input.Body.Username).Msg("login rejected")
			return nil, huma.Error401Unauthorized("invalid username or password")
		}
		return nil, huma.Error500InternalServerError("login failed", err)
	}
	out := &LoginOutput{SetCookie: *h.svc.Auth.Cookie(token, exp)}
	out.Body.Token = token
	out.Body.Expires = exp
	return out, nil
}

func (h *APIHandler) Logout(ctx context.Context, input *struct{}) (*LogoutOutput, error) {
	if h.svc.Auth == nil {
		return nil, huma.Error501NotImplemented("login is not configured")
	}
	return &LogoutOutput{
		SetCookie: *h.svc.Auth.ClearCookie(),
		Body:      MessageBody{Message: "Signed out"},
	}, nil
}
