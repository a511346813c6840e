package jira

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/jirawatch/internal/model"
)

// searchPageSize bounds how many issues a filter resolution returns.
const searchPageSize = 50

// browseURLPattern matches a pasted issue URL like
// https://example.atlassian.net/browse/ABC-12 and captures the key.
var browseURLPattern = regexp.MustCompile(`^https?://[^/\s]+/browse/([A-Za-z][A-Za-z0-9_]*-\d+)\b`)

// filterIDPattern matches a bare saved-filter id.
var filterIDPattern = regexp.MustCompile(`^\d+$`)

// startedLayout is the timestamp format Jira's worklog endpoint accepts.
const startedLayout = "2006-01-02T15:04:05.000-0700"

// SyncClient is the stateless facade over the remote API: each method is
// a single logical remote call. It owns no retry policy and no local
// state; both belong to the submission coordinator.
type SyncClient struct {
	client *Client
}

// NewSyncClient creates a SyncClient for the given credentials. The
// credentials object is owned by the caller; a token rotation means
// constructing a new client.
func NewSyncClient(creds model.Credentials) *SyncClient {
	return &SyncClient{client: NewClient(creds)}
}

// ResolveFilter resolves a saved filter id, a raw JQL string, or a
// pasted issue URL into an ordered issue list. A URL short-circuits to a
// single-issue lookup without a search call.
func (s *SyncClient) ResolveFilter(ctx context.Context, query string) ([]IssueRef, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty filter: %w", ErrFilterInvalid)
	}

	if m := browseURLPattern.FindStringSubmatch(query); m != nil {
		detail, err := s.FetchIssue(ctx, m[1])
		if err != nil {
			return nil, err
		}
		return []IssueRef{{Key: detail.Key, Summary: detail.Summary}}, nil
	}

	jql := query
	if filterIDPattern.MatchString(query) {
		var err error
		jql, err = s.FilterJQL(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	return s.searchIssues(ctx, jql)
}

// searchIssues runs a JQL search returning keys and summaries.
func (s *SyncClient) searchIssues(ctx context.Context, jql string) ([]IssueRef, error) {
	body := map[string]interface{}{
		"jql":        jql,
		"maxResults": searchPageSize,
		"fields":     []string{"summary"},
	}

	var resp SearchResponse
	if err := s.client.Post(ctx, "/rest/api/3/search", body, &resp); err != nil {
		// The search endpoint reports malformed JQL as a validation
		// error; surface it under the filter taxonomy.
		if errors.Is(err, ErrValidation) {
			return nil, fmt.Errorf("jql %q: %w", jql, ErrFilterInvalid)
		}
		return nil, fmt.Errorf("searching issues: %w", err)
	}

	refs := make([]IssueRef, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		refs = append(refs, IssueRef{Key: issue.Key, Summary: issue.Fields.Summary})
	}
	return refs, nil
}

// FetchIssue retrieves summary, description, and remaining estimate for
// a single issue.
func (s *SyncClient) FetchIssue(ctx context.Context, key string) (*IssueDetail, error) {
	path := fmt.Sprintf("/rest/api/3/issue/%s?fields=summary,description,timetracking",
		url.PathEscape(key))

	var issue Issue
	if err := s.client.Get(ctx, path, &issue); err != nil {
		return nil, fmt.Errorf("fetching issue %s: %w", key, err)
	}

	detail := &IssueDetail{
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: flattenADF(issue.Fields.Description),
	}
	if tt := issue.Fields.TimeTracking; tt != nil {
		detail.RemainingEstimateSeconds = tt.RemainingEstimateSeconds
	}
	return detail, nil
}

// ListFavouriteFilters returns the user's starred filters.
func (s *SyncClient) ListFavouriteFilters(ctx context.Context) ([]Filter, error) {
	var filters []Filter
	if err := s.client.Get(ctx, "/rest/api/3/filter/favourite", &filters); err != nil {
		return nil, fmt.Errorf("listing favourite filters: %w", err)
	}
	return filters, nil
}

// FilterJQL fetches the JQL of a saved filter.
func (s *SyncClient) FilterJQL(ctx context.Context, filterID string) (string, error) {
	var filter Filter
	path := "/rest/api/3/filter/" + url.PathEscape(filterID)
	if err := s.client.Get(ctx, path, &filter); err != nil {
		return "", fmt.Errorf("fetching filter %s: %w", filterID, err)
	}
	return filter.JQL, nil
}

// TransitionToInProgress moves the issue to its In Progress status. The
// transition is located by fuzzy name match; if the workflow offers no
// match the call fails with ErrTransitionUnavailable, which callers
// treat as non-fatal.
func (s *SyncClient) TransitionToInProgress(ctx context.Context, key string) error {
	path := fmt.Sprintf("/rest/api/3/issue/%s/transitions", url.PathEscape(key))

	var resp TransitionsResponse
	if err := s.client.Get(ctx, path, &resp); err != nil {
		return fmt.Errorf("fetching transitions for %s: %w", key, err)
	}

	var transitionID string
	for _, tr := range resp.Transitions {
		if strings.Contains(strings.ToLower(tr.Name), "in progress") ||
			strings.Contains(strings.ToLower(tr.To.Name), "in progress") {
			transitionID = tr.ID
			break
		}
	}
	if transitionID == "" {
		return fmt.Errorf("issue %s: %w", key, ErrTransitionUnavailable)
	}

	payload := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	// The transition endpoint returns 204 No Content on success.
	if err := s.client.Post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("transitioning %s: %w", key, err)
	}
	return nil
}

// WorklogRequest describes one worklog submission.
type WorklogRequest struct {
	IssueKey string
	Seconds  int64
	Comment  string
	Started  time.Time
	Estimate model.EstimateAdjustment
}

// PostWorklog creates a worklog entry and returns its id. The estimate
// adjustment is carried as query parameters per the Jira Cloud API; the
// manual mode is applied separately via UpdateRemainingEstimate, so here
// it maps to leave-unchanged.
func (s *SyncClient) PostWorklog(ctx context.Context, req WorklogRequest) (string, error) {
	params := url.Values{}
	switch req.Estimate.Mode {
	case model.EstimateAuto:
		params.Set("adjustEstimate", "auto")
	default:
		params.Set("adjustEstimate", "leave")
	}

	path := fmt.Sprintf("/rest/api/3/issue/%s/worklog?%s",
		url.PathEscape(req.IssueKey), params.Encode())

	body := map[string]interface{}{
		"timeSpentSeconds": req.Seconds,
		"started":          req.Started.Format(startedLayout),
	}
	if comment := commentPayload(req.Comment); comment != nil {
		body["comment"] = comment
	}

	var resp WorklogResponse
	if err := s.client.Post(ctx, path, body, &resp); err != nil {
		return "", fmt.Errorf("posting worklog for %s: %w", req.IssueKey, err)
	}
	return resp.ID, nil
}

// UpdateRemainingEstimate patches the issue's remaining estimate field.
func (s *SyncClient) UpdateRemainingEstimate(ctx context.Context, key string, seconds int64) error {
	path := "/rest/api/3/issue/" + url.PathEscape(key)
	body := map[string]interface{}{
		"fields": map[string]interface{}{
			"timetracking": map[string]string{
				"remainingEstimate": model.FormatDuration(seconds),
			},
		},
	}

	if err := s.client.Put(ctx, path, body); err != nil {
		return fmt.Errorf("updating remaining estimate for %s: %w", key, err)
	}
	return nil
}

// TestConnection verifies the credentials by calling the myself
// endpoint. Returns the account's display name on success.
func (s *SyncClient) TestConnection(ctx context.Context) (string, error) {
	var me Myself
	if err := s.client.Get(ctx, "/rest/api/3/myself", &me); err != nil {
		return "", fmt.Errorf("testing connection: %w", err)
	}
	return me.DisplayName, nil
}
