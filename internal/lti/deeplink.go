package lti

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Resource is a content item the tool offers back to the platform during a
// deep-linking exchange.
type Resource struct {
	URL    string
	Title  string
	Custom map[string]string
}

type deepLinkSettings struct {
	ReturnURL string `json:"deep_link_return_url"`
	Data      string `json:"data"`
}

// DeepLinkService builds the signed deep-linking response for one launch.
type DeepLinkService struct {
	launch *Launch
}

// DeepLink returns the deep-linking client for this launch. Callers should
// check IsDeepLink first.
func (l *Launch) DeepLink() *DeepLinkService {
	return &DeepLinkService{launch: l}
}

var responseFormTemplate = template.Must(template.New("deeplink").Parse(
	`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form action="{{.Action}}" method="POST">
<input type="hidden" name="JWT" value="{{.JWT}}"/>
<noscript><input type="submit" value="Continue"/></noscript>
</form>
</body>
</html>
`))

// ResponseForm renders the auto-submitting form that posts the signed
// deep-linking response JWT to the platform's return endpoint.
func (d *DeepLinkService) ResponseForm(resources []Resource) (string, error) {
	var settings deepLinkSettings
	if err := d.launch.decodeClaim(ClaimDeepLinkSettings, &settings); err != nil {
		return "", err
	}
	if settings.ReturnURL == "" {
		return "", fmt.Errorf("%w: deep link settings carry no return url", ErrValidation)
	}

	signed, err := d.responseJWT(resources, settings)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	err = responseFormTemplate.Execute(&out, struct {
		Action string
		JWT    string
	}{Action: settings.ReturnURL, JWT: signed})
	if err != nil {
		return "", fmt.Errorf("render deep link form: %w", err)
	}
	return out.String(), nil
}

func (d *DeepLinkService) responseJWT(resources []Resource, settings deepLinkSettings) (string, error) {
	items := make([]map[string]any, 0, len(resources))
	for _, res := range resources {
		item := map[string]any{
			"type":  "ltiResourceLink",
			"url":   res.URL,
			"title": res.Title,
		}
		if len(res.Custom) > 0 {
			item["custom"] = res.Custom
		}
		items = append(items, item)
	}

	reg := d.launch.reg
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":             reg.ClientID,
		"aud":             []string{reg.Issuer},
		"iat":             now.Unix(),
		"exp":             now.Add(5 * time.Minute).Unix(),
		"nonce":           uuid.NewString(),
		ClaimMessageType:  "LtiDeepLinkingResponse",
		ClaimVersion:      ltiVersion,
		ClaimDeploymentID: d.launch.claims[ClaimDeploymentID],
		ClaimContentItems: items,
	}
	if settings.Data != "" {
		claims[ClaimDeepLinkData] = settings.Data
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(reg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign deep link response: %w", err)
	}
	return signed, nil
}
