package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/machinebox/graphql"
)

const defaultGraphQLURL = "https://api.github.com/graphql"

const totalsQuery = `
query ($owner: String!, $name: String!, $ref: String!) {
  repository(owner: $owner, name: $name) {
    openIssues: issues(states: OPEN) { totalCount }
    closedIssues: issues(states: CLOSED) { totalCount }
    openPulls: pullRequests(states: OPEN) { totalCount }
    mergedPulls: pullRequests(states: MERGED) { totalCount }
    closedPulls: pullRequests(states: CLOSED) { totalCount }
    ref(qualifiedName: $ref) {
      target {
        ... on Commit {
          history { totalCount }
        }
      }
    }
  }
}`

// GraphQLRunner is implemented by *graphql.Client.
type GraphQLRunner interface {
	Run(ctx context.Context, req *graphql.Request, resp any) error
}

// RepoTotals are uncapped counts that the paginated REST listings cannot report.
type RepoTotals struct {
	OpenIssues    int `json:"open_issues"`
	ClosedIssues  int `json:"closed_issues"`
	OpenPulls     int `json:"open_pulls"`
	MergedPulls   int `json:"merged_pulls"`
	ClosedPulls   int `json:"closed_pulls"`
	BranchCommits int `json:"branch_commits"`
}

// GraphQLClient queries repository totals through the GraphQL API.
type GraphQLClient struct {
	runner GraphQLRunner
}

// NewGraphQLClient creates a client for endpoint. Authentication is carried by httpClient.
func NewGraphQLClient(endpoint string, httpClient *http.Client) *GraphQLClient {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultGraphQLURL
	}
	var opts []graphql.ClientOption
	if httpClient != nil {
		opts = append(opts, graphql.WithHTTPClient(httpClient))
	}
	return &GraphQLClient{runner: graphql.NewClient(endpoint, opts...)}
}

func newGraphQLClientFromRunner(runner GraphQLRunner) *GraphQLClient {
	return &GraphQLClient{runner: runner}
}

type totalCount struct {
	TotalCount int `json:"totalCount"`
}

type totalsResponse struct {
	Repository *struct {
		OpenIssues   totalCount `json:"openIssues"`
		ClosedIssues totalCount `json:"closedIssues"`
		OpenPulls    totalCount `json:"openPulls"`
		MergedPulls  totalCount `json:"mergedPulls"`
		ClosedPulls  totalCount `json:"closedPulls"`
		Ref          *struct {
			Target struct {
				History totalCount `json:"history"`
			} `json:"target"`
		} `json:"ref"`
	} `json:"repository"`
}

// Totals returns issue, pull request and branch commit totals.
func (c *GraphQLClient) Totals(ctx context.Context, owner, repo, branch string) (*RepoTotals, error) {
	if c == nil || c.runner == nil {
		return nil, fmt.Errorf("graphql client is not initialized")
	}
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(branch)
	if ref != "" && !strings.HasPrefix(ref, "refs/") {
		ref = "refs/heads/" + ref
	}

	req := graphql.NewRequest(totalsQuery)
	req.Var("owner", owner)
	req.Var("name", repo)
	req.Var("ref", ref)

	var resp totalsResponse
	if err := c.runner.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("query repository totals: %w", err)
	}
	if resp.Repository == nil {
		return nil, nil
	}

	totals := &RepoTotals{
		OpenIssues:   resp.Repository.OpenIssues.TotalCount,
		ClosedIssues: resp.Repository.ClosedIssues.TotalCount,
		OpenPulls:    resp.Repository.OpenPulls.TotalCount,
		MergedPulls:  resp.Repository.MergedPulls.TotalCount,
		ClosedPulls:  resp.Repository.ClosedPulls.TotalCount,
	}
	if resp.Repository.Ref != nil {
		totals.BranchCommits = resp.Repository.Ref.Target.History.TotalCount
	}
	return totals, nil
}
