// Package lti implements the LTI 1.3 Advantage client side of the relay:
// tool registrations, OIDC login initiation, message-launch validation with
// cache-backed reconstruction, and the AGS, NRPS and deep-linking services
// bound to a validated launch.
package lti

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Registration describes one platform entry of the tool configuration file.
type Registration struct {
	Issuer        string
	ClientID      string
	AuthLoginURL  string
	AuthTokenURL  string
	KeySetURL     string
	DeploymentIDs []string

	// PrivateKey signs client assertions and deep-link responses for this
	// registration.
	PrivateKey *rsa.PrivateKey
}

// HasDeployment reports whether the registration accepts the deployment id.
// An empty list accepts any deployment.
func (r *Registration) HasDeployment(deploymentID string) bool {
	if len(r.DeploymentIDs) == 0 {
		return true
	}
	for _, id := range r.DeploymentIDs {
		if id == deploymentID {
			return true
		}
	}
	return false
}

// ToolConfig maps platform issuers to their registrations. An issuer may
// carry several registrations distinguished by client id.
type ToolConfig struct {
	regs map[string][]*Registration
}

// Registration returns the registration for the issuer, narrowed by client
// id when one is given. With an empty client id the issuer's first (or only)
// registration is returned.
func (tc *ToolConfig) Registration(issuer, clientID string) (*Registration, error) {
	regs := tc.regs[issuer]
	if len(regs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRegistration, issuer)
	}
	if clientID == "" {
		return regs[0], nil
	}
	for _, reg := range regs {
		if reg.ClientID == clientID {
			return reg, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (client_id %s)", ErrNoRegistration, issuer, clientID)
}

// Registrations returns all registrations configured for the issuer.
func (tc *ToolConfig) Registrations(issuer string) []*Registration {
	return tc.regs[issuer]
}

// Issuers lists the configured platform issuers.
func (tc *ToolConfig) Issuers() []string {
	issuers := make([]string, 0, len(tc.regs))
	for iss := range tc.regs {
		issuers = append(issuers, iss)
	}
	return issuers
}

// jsonRegistration mirrors the tool configuration file format: one object
// (or array of objects) per issuer key.
type jsonRegistration struct {
	ClientID       string   `json:"client_id"`
	AuthLoginURL   string   `json:"auth_login_url"`
	AuthTokenURL   string   `json:"auth_token_url"`
	KeySetURL      string   `json:"key_set_url"`
	PrivateKeyFile string   `json:"private_key_file"`
	DeploymentIDs  []string `json:"deployment_ids"`
}

// LoadToolConfig parses the tool configuration file and loads the private
// key of every registration. Relative key paths are resolved against the
// configuration file's directory.
func LoadToolConfig(path string) (*ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool config: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tool config %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	tc := &ToolConfig{regs: make(map[string][]*Registration, len(raw))}
	for issuer, entry := range raw {
		var entries []jsonRegistration
		if err := json.Unmarshal(entry, &entries); err != nil {
			var single jsonRegistration
			if err := json.Unmarshal(entry, &single); err != nil {
				return nil, fmt.Errorf("parse registration for %s: %w", issuer, err)
			}
			entries = []jsonRegistration{single}
		}

		for _, e := range entries {
			reg, err := buildRegistration(issuer, e, baseDir)
			if err != nil {
				return nil, err
			}
			tc.regs[issuer] = append(tc.regs[issuer], reg)
		}
	}

	if len(tc.regs) == 0 {
		return nil, fmt.Errorf("tool config %s has no registrations", path)
	}
	return tc, nil
}

func buildRegistration(issuer string, e jsonRegistration, baseDir string) (*Registration, error) {
	if e.ClientID == "" {
		return nil, fmt.Errorf("registration for %s: client_id is required", issuer)
	}
	if e.AuthLoginURL == "" || e.AuthTokenURL == "" || e.KeySetURL == "" {
		return nil, fmt.Errorf("registration for %s: auth_login_url, auth_token_url and key_set_url are required", issuer)
	}

	keyPath := e.PrivateKeyFile
	if keyPath == "" {
		return nil, fmt.Errorf("registration for %s: private_key_file is required", issuer)
	}
	if !filepath.IsAbs(keyPath) {
		keyPath = filepath.Join(baseDir, keyPath)
	}
	key, err := loadPrivateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("registration for %s: %w", issuer, err)
	}

	return &Registration{
		Issuer:        issuer,
		ClientID:      e.ClientID,
		AuthLoginURL:  e.AuthLoginURL,
		AuthTokenURL:  e.AuthTokenURL,
		KeySetURL:     e.KeySetURL,
		DeploymentIDs: e.DeploymentIDs,
		PrivateKey:    key,
	}, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("private key %s is not PEM encoded", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is not an RSA key", path)
	}
	return key, nil
}

// ConfigSource yields the current tool configuration. Implementations cache
// aggressively; the configuration only changes on explicit reload.
type ConfigSource interface {
	Get() (*ToolConfig, error)
}

// ToolConfigLoader loads the tool configuration file once and serves the
// cached copy thereafter. Reload re-reads the file, replacing the cache only
// on success.
type ToolConfigLoader struct {
	path string

	mu     sync.RWMutex
	cached *ToolConfig
}

// NewToolConfigLoader returns a loader for the given file path. The file is
// not touched until the first Get or Reload.
func NewToolConfigLoader(path string) *ToolConfigLoader {
	return &ToolConfigLoader{path: path}
}

// Get returns the cached configuration, loading it on first use.
func (l *ToolConfigLoader) Get() (*ToolConfig, error) {
	l.mu.RLock()
	cached := l.cached
	l.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	return l.Reload()
}

// Reload re-reads the configuration file. The previously cached copy stays
// in effect when loading fails.
func (l *ToolConfigLoader) Reload() (*ToolConfig, error) {
	tc, err := LoadToolConfig(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cached = tc
	l.mu.Unlock()
	return tc, nil
}
