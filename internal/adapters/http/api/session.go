package api

import (
	"errors"
	"net/http"

	repository "github.com/okian/iqscore/internal/adapters/repository"
	service "github.com/okian/iqscore/internal/app"
)

// SessionCookie is the cookie carrying the session id.
const SessionCookie = "iqscore_session"

// Option configures the API server.
type Option func(*cookieJar)

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(c *cookieJar) {
		c.secure = secure
	}
}

type cookieJar struct {
	secure bool
}

func newCookieJar(opts ...Option) *cookieJar {
	c := &cookieJar{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sessionID returns the id carried by the request, or "".
func (c *cookieJar) sessionID(r *http.Request) string {
	ck, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}

// set hands id back to the client. The cookie lives as long as the browser
// session; the server side expires idle sessions on its own.
func (c *cookieJar) set(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionHandler handles session lifecycle requests.
type SessionHandler struct {
	deps    Dependencies
	cookies *cookieJar
}

// newSessionHandler creates a new session handler.
func newSessionHandler(deps Dependencies, cookies *cookieJar) *SessionHandler {
	return &SessionHandler{deps: deps, cookies: cookies}
}

// HandleEnd handles DELETE /session requests. Ending a session that does
// not exist is not an error.
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_session"
	id := h.cookies.sessionID(r)
	if id != "" {
		err := h.deps.EndSession(r.Context(), id)
		switch {
		case err == nil, errors.Is(err, repository.ErrSessionNotFound):
		case errors.Is(err, service.ErrNotStarted):
			writeError(w, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrNotReady, err))
			return
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
	}
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}
