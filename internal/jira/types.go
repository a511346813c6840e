package jira

import "encoding/json"

// SearchResponse is the response from POST /rest/api/3/search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue represents a single Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the issue fields this client requests.
type IssueFields struct {
	Summary string `json:"summary"`

	// Description is ADF (Atlassian Document Format) on Jira Cloud v3.
	Description json.RawMessage `json:"description,omitempty"`

	TimeTracking *TimeTracking `json:"timetracking,omitempty"`
}

// TimeTracking holds the estimate fields of an issue.
type TimeTracking struct {
	OriginalEstimateSeconds  int64  `json:"originalEstimateSeconds,omitempty"`
	RemainingEstimateSeconds int64  `json:"remainingEstimateSeconds,omitempty"`
	RemainingEstimate        string `json:"remainingEstimate,omitempty"`
}

// Filter represents a saved Jira filter.
type Filter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	JQL  string `json:"jql,omitempty"`
}

// Transition represents a possible status transition for a Jira issue.
type Transition struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	To   TransitionTo `json:"to"`
}

// TransitionTo describes the target status of a transition.
type TransitionTo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TransitionsResponse wraps the list of transitions returned by the API.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// WorklogResponse is the response from the worklog-create endpoint.
type WorklogResponse struct {
	ID      string `json:"id"`
	Self    string `json:"self"`
	Started string `json:"started"`
}

// Myself is the response from GET /rest/api/3/myself.
type Myself struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// ErrorResponse is the standard Jira error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// IssueRef is the minimal issue reference returned by filter resolution.
type IssueRef struct {
	Key     string
	Summary string
}

// IssueDetail is the result of fetching a single issue.
type IssueDetail struct {
	Key                      string
	Summary                  string
	Description              string
	RemainingEstimateSeconds int64
}
