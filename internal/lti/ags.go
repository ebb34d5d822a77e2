package lti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// AGS scopes and media types.
const (
	ScopeLineItem       = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem"
	ScopeScore          = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
	ScopeResultReadonly = "https://purl.imsglobal.org/spec/lti-ags/scope/result.readonly"

	mediaLineItemContainer = "application/vnd.ims.lis.v2.lineitemcontainer+json"
	mediaLineItem          = "application/vnd.ims.lis.v2.lineitem+json"
	mediaScore             = "application/vnd.ims.lis.v1.score+json"
	mediaResultContainer   = "application/vnd.ims.lis.v2.resultcontainer+json"
)

// LineItem describes a gradebook column. Tag is the relay's stable handle;
// ID is assigned by the platform.
type LineItem struct {
	ID           string  `json:"id,omitempty"`
	Tag          string  `json:"tag"`
	Label        string  `json:"label"`
	ScoreMaximum float64 `json:"scoreMaximum"`
}

// Grade is a single score submission. Immutable once constructed.
type Grade struct {
	ScoreGiven       float64 `json:"scoreGiven"`
	ScoreMaximum     float64 `json:"scoreMaximum"`
	Timestamp        string  `json:"timestamp"`
	ActivityProgress string  `json:"activityProgress"`
	GradingProgress  string  `json:"gradingProgress"`
	UserID           string  `json:"userId"`
}

// GradeResult carries the platform's raw response to a score submission.
type GradeResult struct {
	StatusCode int
	Body       []byte
}

// GradeRecord is one row of a line item's results.
type GradeRecord struct {
	UserID        string  `json:"userId"`
	ResultScore   float64 `json:"resultScore"`
	ResultMaximum float64 `json:"resultMaximum"`
	ScoreOf       string  `json:"scoreOf"`
	Comment       string  `json:"comment,omitempty"`
}

type agsEndpoint struct {
	LineItems string   `json:"lineitems"`
	LineItem  string   `json:"lineitem"`
	Scope     []string `json:"scope"`
}

func (l *Launch) agsEndpoint() (*agsEndpoint, error) {
	var ep agsEndpoint
	if err := l.decodeClaim(ClaimAGSEndpoint, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// GradeService drives the platform's Assignment and Grade Services endpoint
// for one launch.
type GradeService struct {
	launch *Launch
}

// Grades returns the AGS client for this launch. Callers should check
// HasGrades first; calls on a launch without the endpoint claim fail with
// ErrNoService.
func (l *Launch) Grades() *GradeService {
	return &GradeService{launch: l}
}

// PutGrade submits the grade to the line item identified by tag, creating
// the line item when the platform does not have it yet.
func (s *GradeService) PutGrade(ctx context.Context, grade Grade, item LineItem) (*GradeResult, error) {
	ep, err := s.launch.agsEndpoint()
	if err != nil {
		return nil, err
	}
	itemURL, err := s.findOrCreateLineItem(ctx, ep, item)
	if err != nil {
		return nil, err
	}
	scoresURL, err := serviceURL(itemURL, "/scores")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(grade)
	if err != nil {
		return nil, fmt.Errorf("encode score: %w", err)
	}
	resp, err := s.launch.client.serviceDo(ctx, s.launch.reg, ep.Scope, http.MethodPost, scoresURL, body, mediaScore, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: score submission to %s returned status %d", ErrUpstream, scoresURL, resp.StatusCode)
	}
	return &GradeResult{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// GetGrades returns all result records of the line item identified by tag.
func (s *GradeService) GetGrades(ctx context.Context, item LineItem) ([]GradeRecord, error) {
	ep, err := s.launch.agsEndpoint()
	if err != nil {
		return nil, err
	}
	itemURL, err := s.findOrCreateLineItem(ctx, ep, item)
	if err != nil {
		return nil, err
	}
	resultsURL, err := serviceURL(itemURL, "/results")
	if err != nil {
		return nil, err
	}

	resp, err := s.launch.client.serviceDo(ctx, s.launch.reg, ep.Scope, http.MethodGet, resultsURL, nil, "", mediaResultContainer)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: results from %s returned status %d", ErrUpstream, resultsURL, resp.StatusCode)
	}
	var records []GradeRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode results from %s: %v", ErrUpstream, resultsURL, err)
	}
	return records, nil
}

// findOrCreateLineItem resolves the line item URL for the given tag. When
// the launch is bound to a single coupled line item, that one is used as is.
func (s *GradeService) findOrCreateLineItem(ctx context.Context, ep *agsEndpoint, item LineItem) (string, error) {
	if ep.LineItems == "" {
		if ep.LineItem != "" {
			return ep.LineItem, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoService, ClaimAGSEndpoint)
	}

	listURL, err := serviceURLQuery(ep.LineItems, "tag", item.Tag)
	if err != nil {
		return "", err
	}
	resp, err := s.launch.client.serviceDo(ctx, s.launch.reg, ep.Scope, http.MethodGet, listURL, nil, "", mediaLineItemContainer)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: line items from %s returned status %d", ErrUpstream, listURL, resp.StatusCode)
	}
	var items []LineItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return "", fmt.Errorf("%w: decode line items from %s: %v", ErrUpstream, listURL, err)
	}
	for _, existing := range items {
		if existing.Tag == item.Tag && existing.ID != "" {
			return existing.ID, nil
		}
	}

	return s.createLineItem(ctx, ep, item)
}

func (s *GradeService) createLineItem(ctx context.Context, ep *agsEndpoint, item LineItem) (string, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode line item: %w", err)
	}
	resp, err := s.launch.client.serviceDo(ctx, s.launch.reg, ep.Scope, http.MethodPost, ep.LineItems, body, mediaLineItem, mediaLineItem)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: create line item %q returned status %d", ErrUpstream, item.Tag, resp.StatusCode)
	}
	var created LineItem
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("%w: decode created line item %q: %v", ErrUpstream, item.Tag, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: platform returned line item %q without id", ErrUpstream, item.Tag)
	}
	return created.ID, nil
}

// serviceDo performs an authenticated platform service request. The caller
// owns the response body.
func (c *Client) serviceDo(ctx context.Context, reg *Registration, scopes []string, method, rawURL string, body []byte, contentType, accept string) (*http.Response, error) {
	token, err := c.accessToken(ctx, reg, scopes)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build service request %s: %w", rawURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, rawURL, err)
	}
	return resp, nil
}

// serviceURL appends a path suffix to a service URL, keeping any query
// string in place (line item URLs commonly carry one).
func serviceURL(base, suffix string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse service url %s: %w", base, err)
	}
	u.Path += suffix
	return u.String(), nil
}

func serviceURLQuery(base, key, value string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse service url %s: %w", base, err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
