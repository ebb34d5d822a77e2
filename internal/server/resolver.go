package server

import (
	"context"
	"fmt"
)

// capability is a requirement an endpoint places on a resolved launch.
type capability int

const (
	capGrades capability = iota + 1
	capRoster
	capDeepLink
)

func (c capability) String() string {
	switch c {
	case capGrades:
		return "grades"
	case capRoster:
		return "roster"
	case capDeepLink:
		return "deep link"
	default:
		return "unknown"
	}
}

// resolveLaunch reconstructs a launch context from its identifier and checks
// the required capabilities. Capability checks are claim queries only; no
// platform call happens here.
func (h *Handlers) resolveLaunch(ctx context.Context, launchID string, caps ...capability) (LaunchContext, error) {
	if launchID == "" {
		return nil, fmt.Errorf("%w: empty launch identifier", ErrClientDataMissing)
	}
	launch, err := h.launches.LaunchFromCache(ctx, launchID)
	if err != nil {
		return nil, err
	}
	for _, c := range caps {
		ok := false
		switch c {
		case capGrades:
			ok = launch.HasGrades()
		case capRoster:
			ok = launch.HasRoster()
		case capDeepLink:
			ok = launch.IsDeepLink()
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCapabilityDenied, c)
		}
	}
	return launch, nil
}
