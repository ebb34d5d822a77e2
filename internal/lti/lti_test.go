package lti

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/edurelay/ltirelay/internal/cachebox"
)

const (
	testIssuer   = "https://lms.example.edu"
	testClientID = "relay-client"
	testKeyID    = "test-key"
)

// staticConf serves a fixed ToolConfig.
type staticConf struct {
	tc *ToolConfig
}

func (s staticConf) Get() (*ToolConfig, error) {
	return s.tc, nil
}

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func newTestRegistration(key *rsa.PrivateKey) *Registration {
	return &Registration{
		Issuer:        testIssuer,
		ClientID:      testClientID,
		AuthLoginURL:  testIssuer + "/auth",
		AuthTokenURL:  testIssuer + "/token",
		KeySetURL:     testIssuer + "/jwks",
		DeploymentIDs: []string{"deployment-1"},
		PrivateKey:    key,
	}
}

func newTestConfig(regs ...*Registration) staticConf {
	tc := &ToolConfig{regs: make(map[string][]*Registration)}
	for _, reg := range regs {
		tc.regs[reg.Issuer] = append(tc.regs[reg.Issuer], reg)
	}
	return staticConf{tc: tc}
}

// newJWKSServer serves the public half of key as a JWKS document.
func newJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	set := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     testKeyID,
			Algorithm: "RS256",
			Use:       "sig",
		}},
	}
	body, err := json.Marshal(set)
	require.NoError(t, err)

	srv := httptest.NewServer(httptestHandler(body))
	t.Cleanup(srv.Close)
	return srv
}

// signLaunchToken signs an id_token with the given claims, applying the
// standard launch claims for anything the caller left unset.
func signLaunchToken(t *testing.T, key *rsa.PrivateKey, overrides map[string]any) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":             testIssuer,
		"aud":             testClientID,
		"sub":             "user-1",
		"name":            "Ann Example",
		"iat":             now.Unix(),
		"exp":             now.Add(time.Hour).Unix(),
		"nonce":           "nonce-1",
		ClaimMessageType:  MessageTypeResourceLink,
		ClaimVersion:      ltiVersion,
		ClaimDeploymentID: "deployment-1",
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// newTestClient wires a Client around the registration with a fresh memory
// store, pointing the key set at the JWKS test server.
func newTestClient(t *testing.T, key *rsa.PrivateKey, reg *Registration) (*Client, cachebox.Store) {
	t.Helper()
	jwks := newJWKSServer(t, key)
	reg.KeySetURL = jwks.URL

	store := cachebox.NewMemoryStore()
	client := NewClient(newTestConfig(reg), store)
	return client, store
}

func httptestHandler(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func seedNonce(store cachebox.Store, nonce string) {
	store.Set(noncePrefix+nonce, []byte(testIssuer), time.Minute)
}

// extractFormValue pulls a hidden input's value out of rendered form markup.
func extractFormValue(t *testing.T, html, name string) string {
	t.Helper()
	marker := `name="` + name + `" value="`
	start := strings.Index(html, marker)
	require.GreaterOrEqual(t, start, 0, "input %s not found in form", name)
	rest := html[start+len(marker):]
	end := strings.Index(rest, `"`)
	require.GreaterOrEqual(t, end, 0)
	return rest[:end]
}
