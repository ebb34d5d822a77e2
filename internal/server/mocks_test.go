package server

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/edurelay/ltirelay/internal/cachebox"
	"github.com/edurelay/ltirelay/internal/config"
	"github.com/edurelay/ltirelay/internal/lti"
)

type mockLaunchService struct {
	beginLoginFn      func(ctx context.Context, params url.Values) (*lti.LoginRedirect, error)
	validateLaunchFn  func(ctx context.Context, params url.Values) (LaunchContext, error)
	launchFromCacheFn func(ctx context.Context, launchID string) (LaunchContext, error)
}

func (m *mockLaunchService) BeginLogin(ctx context.Context, params url.Values) (*lti.LoginRedirect, error) {
	return m.beginLoginFn(ctx, params)
}

func (m *mockLaunchService) ValidateLaunch(ctx context.Context, params url.Values) (LaunchContext, error) {
	return m.validateLaunchFn(ctx, params)
}

func (m *mockLaunchService) LaunchFromCache(ctx context.Context, launchID string) (LaunchContext, error) {
	return m.launchFromCacheFn(ctx, launchID)
}

type mockLaunch struct {
	id       string
	subject  string
	name     string
	custom   map[string]string
	deepLink bool
	grades   bool
	roster   bool

	gradeClient    GradeClient
	rosterClient   RosterClient
	deepLinkClient DeepLinkClient
}

func (m *mockLaunch) ID() string      { return m.id }
func (m *mockLaunch) Subject() string { return m.subject }
func (m *mockLaunch) Name() string    { return m.name }

func (m *mockLaunch) Custom(key, fallback string) string {
	if v, ok := m.custom[key]; ok {
		return v
	}
	return fallback
}

func (m *mockLaunch) IsDeepLink() bool { return m.deepLink }
func (m *mockLaunch) HasGrades() bool  { return m.grades }
func (m *mockLaunch) HasRoster() bool  { return m.roster }

func (m *mockLaunch) Grades() GradeClient      { return m.gradeClient }
func (m *mockLaunch) Roster() RosterClient     { return m.rosterClient }
func (m *mockLaunch) DeepLink() DeepLinkClient { return m.deepLinkClient }

type mockGradeClient struct {
	putGradeFn  func(ctx context.Context, grade lti.Grade, item lti.LineItem) (*lti.GradeResult, error)
	getGradesFn func(ctx context.Context, item lti.LineItem) ([]lti.GradeRecord, error)
}

func (m *mockGradeClient) PutGrade(ctx context.Context, grade lti.Grade, item lti.LineItem) (*lti.GradeResult, error) {
	return m.putGradeFn(ctx, grade, item)
}

func (m *mockGradeClient) GetGrades(ctx context.Context, item lti.LineItem) ([]lti.GradeRecord, error) {
	return m.getGradesFn(ctx, item)
}

type mockRosterClient struct {
	membersFn func(ctx context.Context) ([]lti.Member, error)
}

func (m *mockRosterClient) Members(ctx context.Context) ([]lti.Member, error) {
	return m.membersFn(ctx)
}

type mockDeepLinkClient struct {
	responseFormFn func(resources []lti.Resource) (string, error)
}

func (m *mockDeepLinkClient) ResponseForm(resources []lti.Resource) (string, error) {
	return m.responseFormFn(resources)
}

type testFixture struct {
	handlers *Handlers
	boxes    *cachebox.RequestBox
	cookies  *securecookie.SecureCookie
	cfg      *config.Config
}

func newTestFixture(t *testing.T, svc LaunchService) *testFixture {
	t.Helper()
	cfg := &config.Config{
		ServerAddr:     "localhost:9017",
		ServerURL:      "http://localhost:9017",
		AppendTimezone: true,
		RequestTTL:     time.Hour,
		LaunchTTL:      24 * time.Hour,
	}
	boxes := cachebox.NewRequestBox(cachebox.NewMemoryStore(), cfg.RequestTTL)
	cookies := securecookie.New([]byte("0123456789abcdef0123456789abcdef"), nil)
	return &testFixture{
		handlers: NewHandlers(cfg, boxes, svc, cookies),
		boxes:    boxes,
		cookies:  cookies,
		cfg:      cfg,
	}
}

// sessionCookieValue crafts a signed session cookie accepted by the fixture's
// handlers.
func (f *testFixture) sessionCookieValue(t *testing.T) string {
	t.Helper()
	encoded, err := f.cookies.Encode(SessionCookieName, "test-session")
	if err != nil {
		t.Fatalf("encode session cookie: %v", err)
	}
	return encoded
}

func (f *testFixture) stateCookieValue(t *testing.T, state string) string {
	t.Helper()
	encoded, err := f.cookies.Encode(stateCookieName, state)
	if err != nil {
		t.Fatalf("encode state cookie: %v", err)
	}
	return encoded
}
