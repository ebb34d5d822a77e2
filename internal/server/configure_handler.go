package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edurelay/ltirelay/internal/lti"
)

// Configure answers a deep-linking launch with a content-item response that
// pins the chosen difficulty into the resource link's custom parameters.
func (h *Handlers) Configure(w http.ResponseWriter, r *http.Request) {
	launchID := chi.URLParam(r, "launchID")
	difficulty := chi.URLParam(r, "difficulty")

	launch, err := h.resolveLaunch(r.Context(), launchID, capDeepLink)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resource := lti.Resource{
		URL:    h.cfg.ServerURL + "/launch/",
		Title:  fmt.Sprintf("Breakout %s mode!", difficulty),
		Custom: map[string]string{"difficulty": difficulty},
	}
	form, err := launch.DeepLink().ResponseForm([]lti.Resource{resource})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, form)
}
