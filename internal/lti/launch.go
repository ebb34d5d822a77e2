package lti

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LTI claim URLs.
const (
	ClaimMessageType      = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ClaimVersion          = "https://purl.imsglobal.org/spec/lti/claim/version"
	ClaimDeploymentID     = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"
	ClaimCustom           = "https://purl.imsglobal.org/spec/lti/claim/custom"
	ClaimAGSEndpoint      = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"
	ClaimNRPS             = "https://purl.imsglobal.org/spec/lti-nrps/claim/namesroleservice"
	ClaimDeepLinkSettings = "https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings"
	ClaimContentItems     = "https://purl.imsglobal.org/spec/lti-dl/claim/content_items"
	ClaimDeepLinkData     = "https://purl.imsglobal.org/spec/lti-dl/claim/data"
)

// LTI message types.
const (
	MessageTypeResourceLink = "LtiResourceLinkRequest"
	MessageTypeDeepLink     = "LtiDeepLinkingRequest"

	ltiVersion = "1.3.0"
)

// imsRefIssuer is the IMS reference implementation. It sends an invalid
// nonce on deep-link launches, so nonce validation is skipped for it.
const imsRefIssuer = "http://imsglobal.org"

const launchPrefix = "launch:"

// Launch is a verified launch context: the validated claim set plus the
// registration it was validated against. Instances come from ValidateLaunch
// (fresh) or FromCache (replayed by launch identifier).
type Launch struct {
	id     string
	reg    *Registration
	claims map[string]any
	client *Client
}

// cachedLaunch is the stored form of a validated launch.
type cachedLaunch struct {
	Issuer   string         `json:"iss"`
	ClientID string         `json:"client_id"`
	Claims   map[string]any `json:"claims"`
}

// ValidateLaunch verifies a signed launch message carried in the id_token
// parameter: RS256 signature against the platform JWKS, issuer registration,
// audience, lifetime, LTI version, message type, deployment id and one-shot
// nonce. The validated claim set is cached under a fresh launch identifier
// so later stateless calls can re-resolve it.
func (c *Client) ValidateLaunch(ctx context.Context, params url.Values) (*Launch, error) {
	idToken := params.Get("id_token")
	if idToken == "" {
		return nil, fmt.Errorf("%w: missing id_token parameter", ErrValidation)
	}

	issuer, audience, err := peekToken(idToken)
	if err != nil {
		return nil, err
	}

	conf, err := c.conf.Get()
	if err != nil {
		return nil, fmt.Errorf("load tool config: %w", err)
	}
	reg, err := conf.Registration(issuer, audience)
	if err != nil {
		// A known issuer with an unrecognized audience still resolves by
		// issuer; the audience check below reports the mismatch.
		if reg, err = conf.Registration(issuer, ""); err != nil {
			return nil, err
		}
	}

	keyfunc := func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return c.keys.Key(ctx, reg.KeySetURL, kid)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(reg.Issuer),
		jwt.WithAudience(reg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(defaultClockSkew),
	)
	token, err := parser.Parse(idToken, keyfunc)
	if err != nil {
		logRejectedToken(idToken, err)
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrValidation)
	}
	claims := map[string]any(mapClaims)

	if err := c.validateMessage(reg, claims); err != nil {
		return nil, err
	}

	launch := &Launch{
		id:     "lt-" + uuid.NewString(),
		reg:    reg,
		claims: claims,
		client: c,
	}
	if err := c.cacheLaunch(launch); err != nil {
		return nil, err
	}
	return launch, nil
}

func (c *Client) validateMessage(reg *Registration, claims map[string]any) error {
	messageType, _ := claims[ClaimMessageType].(string)
	if messageType != MessageTypeResourceLink && messageType != MessageTypeDeepLink {
		return fmt.Errorf("%w: unsupported message type %q", ErrValidation, messageType)
	}
	if version, _ := claims[ClaimVersion].(string); version != ltiVersion {
		return fmt.Errorf("%w: unsupported LTI version %q", ErrValidation, version)
	}
	deploymentID, _ := claims[ClaimDeploymentID].(string)
	if deploymentID == "" {
		return fmt.Errorf("%w: missing deployment id claim", ErrValidation)
	}
	if !reg.HasDeployment(deploymentID) {
		return fmt.Errorf("%w: unknown deployment id %q", ErrValidation, deploymentID)
	}

	// The IMS reference platform sends a broken nonce on deep-link
	// launches; skip the nonce check for that issuer only.
	if reg.Issuer == imsRefIssuer && messageType == MessageTypeDeepLink {
		return nil
	}
	nonce, _ := claims["nonce"].(string)
	if !c.consumeNonce(nonce) {
		return fmt.Errorf("%w: unknown or reused nonce", ErrValidation)
	}
	return nil
}

// logRejectedToken dumps the unverified claim set of a rejected launch
// message. Trust failures are opaque without this: the platform's clock,
// audience or deployment misconfiguration only shows up in the claims.
func logRejectedToken(idToken string, cause error) {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		log.Printf("WARNING: rejected launch token is unparseable: %v", cause)
		return
	}
	dump, err := json.Marshal(claims)
	if err != nil {
		dump = []byte("unserializable claims")
	}
	log.Printf("WARNING: rejected launch token (%v); unverified claims: %s", cause, dump)
}

// peekToken extracts iss and aud without verifying the signature, so the
// right registration (and with it the JWKS) can be selected first.
func peekToken(idToken string) (issuer, audience string, err error) {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return "", "", fmt.Errorf("%w: malformed id_token: %v", ErrValidation, err)
	}
	issuer, _ = claims["iss"].(string)
	if issuer == "" {
		return "", "", fmt.Errorf("%w: id_token has no issuer", ErrValidation)
	}
	switch aud := claims["aud"].(type) {
	case string:
		audience = aud
	case []any:
		if len(aud) > 0 {
			audience, _ = aud[0].(string)
		}
	}
	return issuer, audience, nil
}

func (c *Client) cacheLaunch(launch *Launch) error {
	data, err := json.Marshal(cachedLaunch{
		Issuer:   launch.reg.Issuer,
		ClientID: launch.reg.ClientID,
		Claims:   launch.claims,
	})
	if err != nil {
		return fmt.Errorf("encode launch %s: %w", launch.id, err)
	}
	c.store.Set(launchPrefix+launch.id, data, c.launchTTL)
	return nil
}

// FromCache reconstructs a previously validated launch by identifier. The
// claim set is replayed from the cache store; no platform call is made.
func (c *Client) FromCache(ctx context.Context, launchID string) (*Launch, error) {
	if launchID == "" {
		return nil, fmt.Errorf("%w: empty launch identifier", ErrLaunchNotFound)
	}
	data, ok := c.store.Get(launchPrefix + launchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLaunchNotFound, launchID)
	}
	var cached cachedLaunch
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("decode launch %s: %w", launchID, err)
	}

	conf, err := c.conf.Get()
	if err != nil {
		return nil, fmt.Errorf("load tool config: %w", err)
	}
	reg, err := conf.Registration(cached.Issuer, cached.ClientID)
	if err != nil {
		return nil, err
	}

	return &Launch{id: launchID, reg: reg, claims: cached.Claims, client: c}, nil
}

// ID returns the opaque launch identifier embedded in the rendered page and
// used by the stateless API endpoints.
func (l *Launch) ID() string {
	return l.id
}

// Subject returns the sub claim: the platform's identifier for the user.
func (l *Launch) Subject() string {
	sub, _ := l.claims["sub"].(string)
	return sub
}

// Name returns the user's display name, if the platform shared one.
func (l *Launch) Name() string {
	name, _ := l.claims["name"].(string)
	return name
}

// Claims returns the full validated claim set.
func (l *Launch) Claims() map[string]any {
	return l.claims
}

// Custom returns a custom claim value, falling back when the claim or key
// is absent.
func (l *Launch) Custom(key, fallback string) string {
	custom, _ := l.claims[ClaimCustom].(map[string]any)
	if v, ok := custom[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// MessageType returns the LTI message type claim.
func (l *Launch) MessageType() string {
	mt, _ := l.claims[ClaimMessageType].(string)
	return mt
}

// IsDeepLink reports whether this is a deep-linking request launch.
func (l *Launch) IsDeepLink() bool {
	return l.MessageType() == MessageTypeDeepLink
}

// HasGrades reports whether the launch carries an AGS endpoint claim.
func (l *Launch) HasGrades() bool {
	ep, err := l.agsEndpoint()
	return err == nil && (ep.LineItems != "" || ep.LineItem != "")
}

// HasRoster reports whether the launch carries an NRPS service claim.
func (l *Launch) HasRoster() bool {
	svc, err := l.nrpsService()
	return err == nil && svc.ContextMembershipsURL != ""
}

// decodeClaim unmarshals a structured claim into out via its JSON form.
func (l *Launch) decodeClaim(claim string, out any) error {
	raw, ok := l.claims[claim]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoService, claim)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode claim %s: %w", claim, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode claim %s: %w", claim, err)
	}
	return nil
}
