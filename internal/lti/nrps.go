package lti

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// NRPS scope and media type.
const (
	ScopeMembershipReadonly = "https://purl.imsglobal.org/spec/lti-nrps/scope/contextmembership.readonly"

	mediaMembershipContainer = "application/vnd.ims.lti-nrps.v2.membershipcontainer+json"
)

// Member is one roster entry from the Names and Roles service.
type Member struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Email  string   `json:"email,omitempty"`
	Status string   `json:"status,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

type nrpsService struct {
	ContextMembershipsURL string   `json:"context_memberships_url"`
	ServiceVersions       []string `json:"service_versions"`
}

func (l *Launch) nrpsService() (*nrpsService, error) {
	var svc nrpsService
	if err := l.decodeClaim(ClaimNRPS, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// RosterService drives the platform's Names and Roles Provisioning Service
// for one launch.
type RosterService struct {
	launch *Launch
}

// Roster returns the NRPS client for this launch. Callers should check
// HasRoster first.
func (l *Launch) Roster() *RosterService {
	return &RosterService{launch: l}
}

type membershipContainer struct {
	Members []Member `json:"members"`
}

// Members fetches the full member list, following the service's Link-header
// pagination.
func (s *RosterService) Members(ctx context.Context) ([]Member, error) {
	svc, err := s.launch.nrpsService()
	if err != nil {
		return nil, err
	}
	if svc.ContextMembershipsURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoService, ClaimNRPS)
	}

	scopes := []string{ScopeMembershipReadonly}
	var members []Member
	next := svc.ContextMembershipsURL
	for next != "" {
		resp, err := s.launch.client.serviceDo(ctx, s.launch.reg, scopes, http.MethodGet, next, nil, "", mediaMembershipContainer)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: membership from %s returned status %d", ErrUpstream, next, resp.StatusCode)
		}
		var container membershipContainer
		err = json.NewDecoder(resp.Body).Decode(&container)
		link := resp.Header.Get("Link")
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decode membership from %s: %v", ErrUpstream, next, err)
		}
		members = append(members, container.Members...)
		next = nextLink(link)
	}
	return members, nil
}

// nextLink extracts the rel="next" target from a Link header, if any.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(section[0]), "<>")
		for _, param := range section[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` || param == "rel=next" {
				return target
			}
		}
	}
	return ""
}
