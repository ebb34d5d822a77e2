// Package server implements the HTTP surface of the launch relay: the
// cookie-probe correlator, the launch-context resolver, and the score,
// scoreboard and deep-link configuration endpoints.
package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/edurelay/ltirelay/internal/cachebox"
	"github.com/edurelay/ltirelay/internal/config"
	"github.com/edurelay/ltirelay/internal/lti"
)

const (
	// SessionCookieName marks a browser whose first-party cookies survived
	// the login round-trip.
	SessionCookieName = "ltirelay.session"

	stateCookieName = "ltirelay.state"
	testCookieName  = "test_cookie"

	pageTitle = "Game Example"
)

// LaunchService is the trust-protocol collaborator as the handlers need it:
// OIDC login initiation, fresh launch validation, and cache-backed launch
// reconstruction.
type LaunchService interface {
	BeginLogin(ctx context.Context, params url.Values) (*lti.LoginRedirect, error)
	ValidateLaunch(ctx context.Context, params url.Values) (LaunchContext, error)
	LaunchFromCache(ctx context.Context, launchID string) (LaunchContext, error)
}

// LaunchContext is a verified launch as seen by the handlers. Capability
// checks are pure claim queries; the service accessors never make a network
// call by themselves.
type LaunchContext interface {
	ID() string
	Subject() string
	Name() string
	Custom(key, fallback string) string
	IsDeepLink() bool
	HasGrades() bool
	HasRoster() bool
	Grades() GradeClient
	Roster() RosterClient
	DeepLink() DeepLinkClient
}

// GradeClient drives the grading sub-protocol for one launch.
type GradeClient interface {
	PutGrade(ctx context.Context, grade lti.Grade, item lti.LineItem) (*lti.GradeResult, error)
	GetGrades(ctx context.Context, item lti.LineItem) ([]lti.GradeRecord, error)
}

// RosterClient drives the roster sub-protocol for one launch.
type RosterClient interface {
	Members(ctx context.Context) ([]lti.Member, error)
}

// DeepLinkClient renders the platform-bound deep-linking response.
type DeepLinkClient interface {
	ResponseForm(resources []lti.Resource) (string, error)
}

// Handlers bundles the relay's HTTP handlers and their dependencies.
type Handlers struct {
	cfg      *config.Config
	boxes    *cachebox.RequestBox
	launches LaunchService
	cookies  *securecookie.SecureCookie
}

// NewHandlers wires the handler set. The securecookie codec signs the
// session and state cookies.
func NewHandlers(cfg *config.Config, boxes *cachebox.RequestBox, launches LaunchService, cookies *securecookie.SecureCookie) *Handlers {
	return &Handlers{cfg: cfg, boxes: boxes, launches: launches, cookies: cookies}
}

func (h *Handlers) sameSite() http.SameSite {
	// Cross-site LMS frames need SameSite=None, which browsers only accept
	// on Secure cookies.
	if h.cfg.CookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (h *Handlers) setSignedCookie(w http.ResponseWriter, name, value string, maxAge int) error {
	encoded, err := h.cookies.Encode(name, value)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.sameSite(),
	})
	return nil
}

func (h *Handlers) signedCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	var value string
	if err := h.cookies.Decode(name, cookie.Value, &value); err != nil {
		return "", false
	}
	return value, true
}

func (h *Handlers) hasSession(r *http.Request) bool {
	_, ok := h.signedCookie(r, SessionCookieName)
	return ok
}

func (h *Handlers) startSession(w http.ResponseWriter) error {
	return h.setSignedCookie(w, SessionCookieName, uuid.NewString(), 12*3600)
}

// snapshotRequest captures the inbound request's query and form parameters
// for relay across the cookie-probe detour.
func snapshotRequest(r *http.Request) cachebox.PendingRequest {
	_ = r.ParseForm()
	return cachebox.PendingRequest{
		Query: r.URL.Query(),
		Form:  r.PostForm,
	}
}

// liveParams flattens the live request's parameters, form winning over
// query, mirroring PendingRequest.Merged.
func liveParams(r *http.Request) url.Values {
	return snapshotRequest(r).Merged()
}
