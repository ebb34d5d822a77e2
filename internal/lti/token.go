package lti

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

type cachedToken struct {
	value     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken obtains a service access token for the registration and scope
// set via the client-credentials grant with a private_key_jwt client
// assertion. Tokens are cached until shortly before expiry.
func (c *Client) accessToken(ctx context.Context, reg *Registration, scopes []string) (string, error) {
	scope := strings.Join(scopes, " ")
	cacheKey := reg.Issuer + "|" + reg.ClientID + "|" + scope
	if cached, ok := c.tokens.Get(cacheKey); ok && time.Until(cached.expiresAt) > 30*time.Second {
		return cached.value, nil
	}

	assertion, err := c.clientAssertion(reg)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_assertion_type": {clientAssertionType},
		"client_assertion":      {assertion},
		"scope":                 {scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.AuthTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint %s: %v", ErrUpstream, reg.AuthTokenURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint %s returned status %d", ErrUpstream, reg.AuthTokenURL, resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrUpstream, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint %s returned no access token", ErrUpstream, reg.AuthTokenURL)
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.tokens.Add(cacheKey, cachedToken{
		value:     tr.AccessToken,
		expiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	})
	return tr.AccessToken, nil
}

func (c *Client) clientAssertion(reg *Registration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": reg.ClientID,
		"sub": reg.ClientID,
		"aud": reg.AuthTokenURL,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(reg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign client assertion for %s: %w", reg.ClientID, err)
	}
	return assertion, nil
}
