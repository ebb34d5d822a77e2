package server

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/edurelay/ltirelay/internal/lti"
)

// The correlator implements the two-phase cookie handshake. Both /login/
// and /launch/ run the same state machine independently:
//
//   Probe:  the request carries no proof that first-party cookies survive a
//           redirect round-trip. The full parameter snapshot is parked in
//           the request box under a fresh identifier and the browser is sent
//           on a detour that returns with that identifier.
//   Resume: the request carries the identifier and/or the session cookie.
//           The original parameters are restored (from the box, or live when
//           the cookie proves session affinity) and handed to the trust
//           protocol client.
//
// Identifier presence is checked before cookie presence so a probe can never
// loop: a request that returns with an identifier always resumes.

// CheckCookiesAllowed reports whether a previously set test cookie made it
// back, for the probe page's client-side detection.
func (h *Handlers) CheckCookiesAllowed(w http.ResponseWriter, r *http.Request) {
	ts := r.URL.Query().Get("ts")
	cookie, err := r.Cookie(testCookieName)
	allowed := err == nil && ts != "" && cookie.Value == ts
	writeJSON(w, http.StatusOK, map[string]bool{"cookies_allowed": allowed})
}

// Login handles OIDC login initiation from the platform.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("cookies_allowed") != "" {
		h.resumeLogin(w, r)
		return
	}
	h.probeLogin(w, r)
}

func (h *Handlers) probeLogin(w http.ResponseWriter, r *http.Request) {
	id, err := h.boxes.Put(snapshotRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	protocol := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		protocol = "https"
	}
	h.render(w, "check_cookie.html", map[string]any{
		"PageTitle":     pageTitle,
		"LoginUniqueID": id,
		"SiteProtocol":  protocol,
	})
}

func (h *Handlers) resumeLogin(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("login_unique_id")
	if id == "" {
		writeError(w, r, fmt.Errorf("%w: missing login_unique_id parameter", ErrClientDataMissing))
		return
	}
	snapshot, err := h.boxes.Take(id)
	if err != nil {
		writeError(w, r, fmt.Errorf("restore login data: %w", err))
		return
	}

	redirect, err := h.launches.BeginLogin(r.Context(), snapshot.Merged())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.setSignedCookie(w, stateCookieName, redirect.State, 3600); err != nil {
		writeError(w, r, fmt.Errorf("set state cookie: %w", err))
		return
	}
	if err := h.startSession(w); err != nil {
		writeError(w, r, fmt.Errorf("set session cookie: %w", err))
		return
	}
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// Launch handles the LTI launch message.
func (h *Handlers) Launch(w http.ResponseWriter, r *http.Request) {
	launchID := r.URL.Query().Get("launch_id")
	hasSession := h.hasSession(r)

	if launchID == "" && !hasSession {
		h.probeLaunch(w, r)
		return
	}

	// Resume: live parameters when the session cookie round-tripped and the
	// launch message arrived with this request; the relayed snapshot
	// otherwise (including page refreshes, which carry no id_token).
	var params url.Values
	if live := liveParams(r); hasSession && live.Get("id_token") != "" {
		params = live
	} else {
		snapshot, err := h.boxes.Peek(launchID)
		if err != nil {
			writeError(w, r, fmt.Errorf("restore launch data: %w", err))
			return
		}
		params = snapshot.Merged()
	}

	if err := h.checkState(r, params); err != nil {
		writeError(w, r, err)
		return
	}

	launch, err := h.launches.ValidateLaunch(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Printf("INFO: launch %s validated for subject %s (deep link: %t)", launch.ID(), launch.Subject(), launch.IsDeepLink())

	if !hasSession {
		if err := h.startSession(w); err != nil {
			writeError(w, r, fmt.Errorf("set session cookie: %w", err))
			return
		}
	}

	h.render(w, "game.html", map[string]any{
		"PageTitle":    pageTitle,
		"LaunchID":     launch.ID(),
		"UserName":     launch.Name(),
		"Difficulty":   launch.Custom("difficulty", "normal"),
		"IsDeepLink":   launch.IsDeepLink(),
		"ScoreMaximum": scoreMaximum,
		"TimeMaximum":  timeMaximum,
	})
}

func (h *Handlers) probeLaunch(w http.ResponseWriter, r *http.Request) {
	id, err := h.boxes.Put(snapshotRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	redirectURL := *r.URL
	q := redirectURL.Query()
	q.Set("launch_id", id)
	redirectURL.RawQuery = q.Encode()

	// Immediate client-side redirect: the second request arrives first-party
	// and tells us whether cookies survived.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<script type="text/javascript">window.location=%q;</script>`, redirectURL.String())
}

// checkState compares the OIDC state parameter against the signed state
// cookie. A present cookie must match. When the cookie is absent the launch
// came through the cookieless relay; nonce validation still protects against
// replay, so that case only logs.
func (h *Handlers) checkState(r *http.Request, params url.Values) error {
	cookieState, ok := h.signedCookie(r, stateCookieName)
	if !ok {
		log.Printf("WARNING: no state cookie for launch (cookieless relay); relying on nonce check")
		return nil
	}
	if params.Get("state") != cookieState {
		return fmt.Errorf("%w: state parameter does not match state cookie", lti.ErrValidation)
	}
	return nil
}
