package server

import (
	"context"
	"net/url"

	"github.com/edurelay/ltirelay/internal/lti"
)

// LTIService adapts the lti.Client to the LaunchService contract.
type LTIService struct {
	client *lti.Client
}

// NewLTIService wraps the trust-protocol client.
func NewLTIService(client *lti.Client) *LTIService {
	return &LTIService{client: client}
}

func (s *LTIService) BeginLogin(ctx context.Context, params url.Values) (*lti.LoginRedirect, error) {
	return s.client.BeginLogin(ctx, params)
}

func (s *LTIService) ValidateLaunch(ctx context.Context, params url.Values) (LaunchContext, error) {
	launch, err := s.client.ValidateLaunch(ctx, params)
	if err != nil {
		return nil, err
	}
	return ltiLaunch{launch}, nil
}

func (s *LTIService) LaunchFromCache(ctx context.Context, launchID string) (LaunchContext, error) {
	launch, err := s.client.FromCache(ctx, launchID)
	if err != nil {
		return nil, err
	}
	return ltiLaunch{launch}, nil
}

// ltiLaunch narrows *lti.Launch's concrete service accessors to the handler
// interfaces; everything else promotes through the embedded launch.
type ltiLaunch struct {
	*lti.Launch
}

func (l ltiLaunch) Grades() GradeClient {
	return l.Launch.Grades()
}

func (l ltiLaunch) Roster() RosterClient {
	return l.Launch.Roster()
}

func (l ltiLaunch) DeepLink() DeepLinkClient {
	return l.Launch.DeepLink()
}
