package lti

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

const noncePrefix = "nonce:"

// LoginRedirect is the outcome of a successful OIDC login initiation. The
// caller is responsible for persisting State in a signed cookie and issuing
// the redirect.
type LoginRedirect struct {
	URL   string
	State string
	Nonce string
}

// BeginLogin handles an LTI third-party-initiated login request. It resolves
// the platform registration from the iss (and optional client_id) parameter,
// mints state and nonce values, records the nonce for one-shot verification
// at launch time, and builds the platform authentication redirect targeting
// the request's target_link_uri.
func (c *Client) BeginLogin(ctx context.Context, params url.Values) (*LoginRedirect, error) {
	issuer := params.Get("iss")
	if issuer == "" {
		return nil, fmt.Errorf("%w: missing iss parameter", ErrValidation)
	}
	target := params.Get("target_link_uri")
	if target == "" {
		return nil, fmt.Errorf("%w: missing target_link_uri parameter", ErrValidation)
	}

	conf, err := c.conf.Get()
	if err != nil {
		return nil, fmt.Errorf("load tool config: %w", err)
	}
	reg, err := conf.Registration(issuer, params.Get("client_id"))
	if err != nil {
		return nil, err
	}

	state := "state-" + uuid.NewString()
	nonce := uuid.NewString()
	c.store.Set(noncePrefix+nonce, []byte(issuer), c.nonceTTL)

	authURL, err := url.Parse(reg.AuthLoginURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth login url for %s: %w", issuer, err)
	}
	q := authURL.Query()
	q.Set("scope", "openid")
	q.Set("response_type", "id_token")
	q.Set("response_mode", "form_post")
	q.Set("prompt", "none")
	q.Set("client_id", reg.ClientID)
	q.Set("redirect_uri", target)
	q.Set("state", state)
	q.Set("nonce", nonce)
	if hint := params.Get("login_hint"); hint != "" {
		q.Set("login_hint", hint)
	}
	if hint := params.Get("lti_message_hint"); hint != "" {
		q.Set("lti_message_hint", hint)
	}
	authURL.RawQuery = q.Encode()

	return &LoginRedirect{URL: authURL.String(), State: state, Nonce: nonce}, nil
}

// consumeNonce removes the nonce from the store, reporting whether it was
// present. Nonces are strictly one-shot: at most one concurrent caller
// observes the nonce.
func (c *Client) consumeNonce(nonce string) bool {
	if nonce == "" {
		return false
	}
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	_, ok := c.store.Get(noncePrefix + nonce)
	if ok {
		c.store.Delete(noncePrefix + nonce)
	}
	return ok
}
