package lti

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestKeyFile(t *testing.T, dir string) string {
	t.Helper()
	key := newTestKey(t)
	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	path := filepath.Join(dir, "private.key")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writeToolConfigFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "tool.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadToolConfigSingleRegistration(t *testing.T) {
	dir := t.TempDir()
	writeTestKeyFile(t, dir)
	path := writeToolConfigFile(t, dir, fmt.Sprintf(`{
		%q: {
			"client_id": "relay-client",
			"auth_login_url": "https://lms.example.edu/auth",
			"auth_token_url": "https://lms.example.edu/token",
			"key_set_url": "https://lms.example.edu/jwks",
			"private_key_file": "private.key",
			"deployment_ids": ["deployment-1"]
		}
	}`, testIssuer))

	tc, err := LoadToolConfig(path)
	require.NoError(t, err)

	reg, err := tc.Registration(testIssuer, "")
	require.NoError(t, err)
	assert.Equal(t, "relay-client", reg.ClientID)
	assert.Equal(t, "https://lms.example.edu/auth", reg.AuthLoginURL)
	assert.NotNil(t, reg.PrivateKey)
	assert.True(t, reg.HasDeployment("deployment-1"))
	assert.False(t, reg.HasDeployment("deployment-2"))
}

func TestLoadToolConfigRegistrationArray(t *testing.T) {
	dir := t.TempDir()
	writeTestKeyFile(t, dir)
	path := writeToolConfigFile(t, dir, fmt.Sprintf(`{
		%q: [
			{
				"client_id": "client-a",
				"auth_login_url": "https://lms.example.edu/auth",
				"auth_token_url": "https://lms.example.edu/token",
				"key_set_url": "https://lms.example.edu/jwks",
				"private_key_file": "private.key"
			},
			{
				"client_id": "client-b",
				"auth_login_url": "https://lms.example.edu/auth",
				"auth_token_url": "https://lms.example.edu/token",
				"key_set_url": "https://lms.example.edu/jwks",
				"private_key_file": "private.key"
			}
		]
	}`, testIssuer))

	tc, err := LoadToolConfig(path)
	require.NoError(t, err)

	reg, err := tc.Registration(testIssuer, "client-b")
	require.NoError(t, err)
	assert.Equal(t, "client-b", reg.ClientID)

	// Empty client id picks the first registration.
	reg, err = tc.Registration(testIssuer, "")
	require.NoError(t, err)
	assert.Equal(t, "client-a", reg.ClientID)

	_, err = tc.Registration(testIssuer, "client-c")
	assert.ErrorIs(t, err, ErrNoRegistration)
}

func TestLoadToolConfigErrors(t *testing.T) {
	dir := t.TempDir()
	writeTestKeyFile(t, dir)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing client id", body: fmt.Sprintf(`{%q: {"auth_login_url":"a","auth_token_url":"b","key_set_url":"c","private_key_file":"private.key"}}`, testIssuer)},
		{name: "missing urls", body: fmt.Sprintf(`{%q: {"client_id":"x","private_key_file":"private.key"}}`, testIssuer)},
		{name: "missing key file entry", body: fmt.Sprintf(`{%q: {"client_id":"x","auth_login_url":"a","auth_token_url":"b","key_set_url":"c"}}`, testIssuer)},
		{name: "nonexistent key file", body: fmt.Sprintf(`{%q: {"client_id":"x","auth_login_url":"a","auth_token_url":"b","key_set_url":"c","private_key_file":"missing.key"}}`, testIssuer)},
		{name: "empty config", body: `{}`},
		{name: "not json", body: `not json at all`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeToolConfigFile(t, dir, tt.body)
			_, err := LoadToolConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestRegistrationUnknownIssuer(t *testing.T) {
	tc := &ToolConfig{regs: map[string][]*Registration{}}
	_, err := tc.Registration("https://unknown.example.edu", "")
	assert.ErrorIs(t, err, ErrNoRegistration)
}

func TestToolConfigLoaderCachesUntilReload(t *testing.T) {
	dir := t.TempDir()
	writeTestKeyFile(t, dir)
	path := writeToolConfigFile(t, dir, fmt.Sprintf(`{
		%q: {
			"client_id": "client-a",
			"auth_login_url": "https://lms.example.edu/auth",
			"auth_token_url": "https://lms.example.edu/token",
			"key_set_url": "https://lms.example.edu/jwks",
			"private_key_file": "private.key"
		}
	}`, testIssuer))

	loader := NewToolConfigLoader(path)
	first, err := loader.Get()
	require.NoError(t, err)

	// Rewrite the file; the cached copy must stay in effect until Reload.
	writeToolConfigFile(t, dir, fmt.Sprintf(`{
		%q: {
			"client_id": "client-changed",
			"auth_login_url": "https://lms.example.edu/auth",
			"auth_token_url": "https://lms.example.edu/token",
			"key_set_url": "https://lms.example.edu/jwks",
			"private_key_file": "private.key"
		}
	}`, testIssuer))

	cached, err := loader.Get()
	require.NoError(t, err)
	assert.Same(t, first, cached)

	reloaded, err := loader.Reload()
	require.NoError(t, err)
	reg, err := reloaded.Registration(testIssuer, "")
	require.NoError(t, err)
	assert.Equal(t, "client-changed", reg.ClientID)
}

func TestToolConfigLoaderReloadFailureKeepsCache(t *testing.T) {
	dir := t.TempDir()
	writeTestKeyFile(t, dir)
	path := writeToolConfigFile(t, dir, fmt.Sprintf(`{
		%q: {
			"client_id": "client-a",
			"auth_login_url": "https://lms.example.edu/auth",
			"auth_token_url": "https://lms.example.edu/token",
			"key_set_url": "https://lms.example.edu/jwks",
			"private_key_file": "private.key"
		}
	}`, testIssuer))

	loader := NewToolConfigLoader(path)
	_, err := loader.Get()
	require.NoError(t, err)

	writeToolConfigFile(t, dir, `broken`)
	_, err = loader.Reload()
	require.Error(t, err)

	// The previous configuration is still served.
	tc, err := loader.Get()
	require.NoError(t, err)
	_, err = tc.Registration(testIssuer, "")
	assert.NoError(t, err)
}
