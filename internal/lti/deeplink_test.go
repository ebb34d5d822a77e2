package lti

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edurelay/ltirelay/internal/cachebox"
)

func newDeepLinkLaunch(t *testing.T) *Launch {
	t.Helper()
	key := newTestKey(t)
	reg := newTestRegistration(key)
	client := NewClient(newTestConfig(reg), cachebox.NewMemoryStore())
	return &Launch{
		id:  "lt-test",
		reg: reg,
		claims: map[string]any{
			"sub":             "user-1",
			ClaimMessageType:  MessageTypeDeepLink,
			ClaimDeploymentID: "deployment-1",
			ClaimDeepLinkSettings: map[string]any{
				"deep_link_return_url": "https://lms.example.edu/deep_link_return",
				"data":                 "opaque-platform-data",
			},
		},
		client: client,
	}
}

func TestResponseForm(t *testing.T) {
	launch := newDeepLinkLaunch(t)

	html, err := launch.DeepLink().ResponseForm([]Resource{{
		URL:    "https://tool.example.edu/launch/",
		Title:  "Breakout hard mode!",
		Custom: map[string]string{"difficulty": "hard"},
	}})
	require.NoError(t, err)

	assert.Contains(t, html, `action="https://lms.example.edu/deep_link_return"`)
	assert.Contains(t, html, `name="JWT"`)

	// Pull the JWT out of the form and verify it against the tool key.
	signed := extractFormValue(t, html, "JWT")
	var claims jwt.MapClaims
	token, err := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})).ParseWithClaims(
		signed, &claims,
		func(*jwt.Token) (any, error) { return &launch.reg.PrivateKey.PublicKey, nil },
	)
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, testClientID, claims["iss"])
	assert.Equal(t, "LtiDeepLinkingResponse", claims[ClaimMessageType])
	assert.Equal(t, "deployment-1", claims[ClaimDeploymentID])
	assert.Equal(t, "opaque-platform-data", claims[ClaimDeepLinkData])

	items, ok := claims[ClaimContentItems].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "ltiResourceLink", item["type"])
	assert.Equal(t, "Breakout hard mode!", item["title"])
	custom := item["custom"].(map[string]any)
	assert.Equal(t, "hard", custom["difficulty"])
}

func TestResponseFormWithoutSettings(t *testing.T) {
	key := newTestKey(t)
	reg := newTestRegistration(key)
	client := NewClient(newTestConfig(reg), cachebox.NewMemoryStore())
	launch := &Launch{id: "lt-test", reg: reg, claims: map[string]any{"sub": "user-1"}, client: client}

	_, err := launch.DeepLink().ResponseForm(nil)
	assert.ErrorIs(t, err, ErrNoService)
}
