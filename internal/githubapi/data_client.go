package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultGitHubAPIBaseURL = "https://api.github.com/"

// UnknownAuthor is the identity used when a commit has neither login nor name.
const UnknownAuthor = "Unknown"

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusAccepted indicates GitHub accepted the request and is still computing results.
	EndpointStatusAccepted EndpointStatus = "accepted"
	// EndpointStatusNoContent indicates an empty result, like stats for an empty repository.
	EndpointStatusNoContent EndpointStatus = "no_content"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusUnknown indicates an unclassified status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// PageLimits caps the number of pages fetched per listing.
type PageLimits struct {
	Commits       int
	DefaultBranch int
	Branches      int
	Issues        int
	Pulls         int
	Contributors  int
	Milestones    int
}

// DefaultPageLimits returns the standard page caps.
func DefaultPageLimits() PageLimits {
	return PageLimits{
		Commits:       10,
		DefaultBranch: 10,
		Branches:      5,
		Issues:        5,
		Pulls:         5,
		Contributors:  3,
		Milestones:    3,
	}
}

func (l PageLimits) withDefaults() PageLimits {
	defaults := DefaultPageLimits()
	if l.Commits <= 0 {
		l.Commits = defaults.Commits
	}
	if l.DefaultBranch <= 0 {
		l.DefaultBranch = defaults.DefaultBranch
	}
	if l.Branches <= 0 {
		l.Branches = defaults.Branches
	}
	if l.Issues <= 0 {
		l.Issues = defaults.Issues
	}
	if l.Pulls <= 0 {
		l.Pulls = defaults.Pulls
	}
	if l.Contributors <= 0 {
		l.Contributors = defaults.Contributors
	}
	if l.Milestones <= 0 {
		l.Milestones = defaults.Milestones
	}
	return l
}

// Repository is repository metadata.
type Repository struct {
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	Description   string     `json:"description"`
	HTMLURL       string     `json:"html_url"`
	DefaultBranch string     `json:"default_branch"`
	Language      string     `json:"language"`
	Visibility    string     `json:"visibility"`
	Private       bool       `json:"private"`
	Archived      bool       `json:"archived"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	Watchers      int        `json:"watchers"`
	OpenIssues    int        `json:"open_issues"`
	SizeKB        int        `json:"size_kb"`
	License       string     `json:"license,omitempty"`
	Topics        []string   `json:"topics,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	PushedAt      *time.Time `json:"pushed_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Commit is one commit from the branch commit listing.
type Commit struct {
	SHA         string     `json:"sha"`
	ShortSHA    string     `json:"short_sha"`
	Message     string     `json:"message"`
	FullMessage string     `json:"full_message"`
	AuthorID    string     `json:"author_id"`
	AuthorName  string     `json:"author_name"`
	AuthorLogin string     `json:"author_login,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
}

// Comparison is the result of comparing base...head.
type Comparison struct {
	Status       string   `json:"status"`
	AheadBy      int      `json:"ahead_by"`
	BehindBy     int      `json:"behind_by"`
	TotalCommits int      `json:"total_commits"`
	SHAs         []string `json:"shas"`
}

// CommitFile is one file touched by a commit.
type CommitFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
}

// CommitDetail carries diff statistics for one commit.
type CommitDetail struct {
	SHA       string       `json:"sha"`
	Additions int          `json:"additions"`
	Deletions int          `json:"deletions"`
	Total     int          `json:"total"`
	Files     []CommitFile `json:"files"`
}

// Issue is one repository issue. Pull-request-backed issues are never returned.
type Issue struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	State          string     `json:"state"`
	Author         string     `json:"author,omitempty"`
	Assignee       string     `json:"assignee,omitempty"`
	Labels         []string   `json:"labels"`
	HTMLURL        string     `json:"html_url,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	ResolutionDays *int       `json:"resolution_days,omitempty"`
}

// PullRequest is one pull request. State is "merged" when it was merged.
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	Author    string     `json:"author,omitempty"`
	Head      string     `json:"head"`
	Base      string     `json:"base"`
	Draft     bool       `json:"draft"`
	HTMLURL   string     `json:"html_url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
	MergeDays *int       `json:"merge_days,omitempty"`
}

// Merged reports whether the pull request was merged.
func (p PullRequest) Merged() bool {
	return p.MergedAt != nil
}

// Touches reports whether branch is the pull request's head or base.
func (p PullRequest) Touches(branch string) bool {
	return p.Head == branch || p.Base == branch
}

// Contributor is one repository contributor.
type Contributor struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	HTMLURL       string `json:"html_url,omitempty"`
	Type          string `json:"type,omitempty"`
}

// TreeEntry is one blob in the recursive tree.
type TreeEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Tree is the recursive tree of a ref, blobs only.
type Tree struct {
	Entries   []TreeEntry `json:"entries"`
	Truncated bool        `json:"truncated"`
}

// WeekActivity is one week of commit activity.
type WeekActivity struct {
	WeekStart time.Time `json:"week"`
	Total     int       `json:"total"`
	Days      []int     `json:"days,omitempty"`
}

// CommitActivityResult is the typed result for `/stats/commit_activity`.
type CommitActivityResult struct {
	Status EndpointStatus `json:"status"`
	Weeks  []WeekActivity `json:"weeks"`
}

// Milestone is one repository milestone.
type Milestone struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	State        string     `json:"state"`
	OpenIssues   int        `json:"open_issues"`
	ClosedIssues int        `json:"closed_issues"`
	DueOn        *time.Time `json:"due_on,omitempty"`
	Description  string     `json:"description"`
}

// DataClient is a typed client for the repository endpoints the dashboard reads.
type DataClient struct {
	provider  *Provider
	limits    PageLimits
	detailTTL time.Duration
}

// DataClientOptions configures a DataClient.
type DataClientOptions struct {
	Limits PageLimits
	// CommitDetailTTL overrides the provider ttl for immutable commit details.
	CommitDetailTTL time.Duration
}

// NewDataClient creates a typed data client over a provider.
func NewDataClient(provider *Provider, opts DataClientOptions) (*DataClient, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	return &DataClient{
		provider:  provider,
		limits:    opts.Limits.withDefaults(),
		detailTTL: opts.CommitDetailTTL,
	}, nil
}

// Provider returns the underlying provider.
func (c *DataClient) Provider() *Provider {
	return c.provider
}

// Limits returns the effective page limits.
func (c *DataClient) Limits() PageLimits {
	return c.limits
}

// GetRepository returns repository metadata, or nil when it is not found.
func (c *DataClient) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	body, err := c.provider.Get(ctx, repoPath(owner, repo), nil)
	if err != nil || body == nil {
		return nil, err
	}

	var payload repositoryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode repository: %w", err)
	}
	if payload.FullName == "" {
		return nil, nil
	}
	defaultBranch := payload.DefaultBranch
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	repository := &Repository{
		Name:          payload.Name,
		FullName:      payload.FullName,
		Description:   payload.Description,
		HTMLURL:       payload.HTMLURL,
		DefaultBranch: defaultBranch,
		Language:      payload.Language,
		Visibility:    payload.Visibility,
		Private:       payload.Private,
		Archived:      payload.Archived,
		Stars:         payload.StargazersCount,
		Forks:         payload.ForksCount,
		Watchers:      payload.SubscribersCount,
		OpenIssues:    payload.OpenIssuesCount,
		SizeKB:        payload.Size,
		Topics:        payload.Topics,
		CreatedAt:     parseTime(payload.CreatedAt),
		PushedAt:      parseTime(payload.PushedAt),
		UpdatedAt:     parseTime(payload.UpdatedAt),
	}
	if payload.License != nil {
		repository.License = payload.License.SPDXID
	}
	return repository, nil
}

// ListBranches returns branch names.
func (c *DataClient) ListBranches(ctx context.Context, owner, repo string) ([]string, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	items, err := c.provider.GetPaginated(ctx, repoPath(owner, repo)+"/branches", nil, c.limits.Branches)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &payload); err != nil || payload.Name == "" {
			continue
		}
		names = append(names, payload.Name)
	}
	return names, nil
}

// ListCommits lists commits reachable from branch, newest first. maxPages <= 0
// uses the configured commit page cap.
func (c *DataClient) ListCommits(ctx context.Context, owner, repo, branch string, maxPages int) ([]Commit, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		maxPages = c.limits.Commits
	}
	params := url.Values{}
	if strings.TrimSpace(branch) != "" {
		params.Set("sha", branch)
	}
	items, err := c.provider.GetPaginated(ctx, repoPath(owner, repo)+"/commits", params, maxPages)
	if err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(items))
	for _, item := range items {
		var payload commitListPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			continue
		}
		commits = append(commits, payload.toCommit())
	}
	return commits, nil
}

// DefaultBranchSHAs returns the set of commit hashes in the first pages of the
// default branch history.
func (c *DataClient) DefaultBranchSHAs(ctx context.Context, owner, repo, defaultBranch string) (map[string]struct{}, error) {
	commits, err := c.ListCommits(ctx, owner, repo, defaultBranch, c.limits.DefaultBranch)
	if err != nil {
		return nil, err
	}
	shas := make(map[string]struct{}, len(commits))
	for _, commit := range commits {
		if commit.SHA != "" {
			shas[commit.SHA] = struct{}{}
		}
	}
	return shas, nil
}

// CompareCommits compares base...head. It returns nil when GitHub has no comparison.
func (c *DataClient) CompareCommits(ctx context.Context, owner, repo, base, head string) (*Comparison, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	if strings.TrimSpace(base) == "" || strings.TrimSpace(head) == "" {
		return nil, fmt.Errorf("base and head are required")
	}
	body, err := c.provider.Get(ctx, repoPath(owner, repo)+"/compare/"+base+"..."+head, nil)
	if err != nil || body == nil {
		return nil, err
	}

	var payload comparePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode comparison: %w", err)
	}
	comparison := &Comparison{
		Status:       payload.Status,
		AheadBy:      payload.AheadBy,
		BehindBy:     payload.BehindBy,
		TotalCommits: payload.TotalCommits,
		SHAs:         make([]string, 0, len(payload.Commits)),
	}
	for _, commit := range payload.Commits {
		if commit.SHA != "" {
			comparison.SHAs = append(comparison.SHAs, commit.SHA)
		}
	}
	return comparison, nil
}

// GetCommitDetail returns diff statistics for sha, or nil when it is not found.
func (c *DataClient) GetCommitDetail(ctx context.Context, owner, repo, sha string) (*CommitDetail, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sha) == "" {
		return nil, fmt.Errorf("sha is required")
	}
	path := repoPath(owner, repo) + "/commits/" + sha
	var body json.RawMessage
	var err error
	if c.detailTTL > 0 {
		body, err = c.provider.GetTTL(ctx, path, nil, c.detailTTL)
	} else {
		body, err = c.provider.Get(ctx, path, nil)
	}
	if err != nil || body == nil {
		return nil, err
	}

	var payload commitDetailPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode commit detail: %w", err)
	}
	detail := &CommitDetail{
		SHA:       payload.SHA,
		Additions: payload.Stats.Additions,
		Deletions: payload.Stats.Deletions,
		Total:     payload.Stats.Total,
		Files:     make([]CommitFile, 0, len(payload.Files)),
	}
	for _, file := range payload.Files {
		detail.Files = append(detail.Files, CommitFile{
			Filename:  file.Filename,
			Status:    file.Status,
			Additions: file.Additions,
			Deletions: file.Deletions,
			Changes:   file.Changes,
		})
	}
	return detail, nil
}

// ListIssues lists issues in every state, skipping pull requests.
func (c *DataClient) ListIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	items, err := c.provider.GetPaginated(ctx, repoPath(owner, repo)+"/issues", url.Values{"state": {"all"}}, c.limits.Issues)
	if err != nil {
		return nil, err
	}
	issues := make([]Issue, 0, len(items))
	for _, item := range items {
		var payload issuePayload
		if err := json.Unmarshal(item, &payload); err != nil {
			continue
		}
		if len(payload.PullRequest) > 0 {
			continue
		}
		issue := Issue{
			Number:    payload.Number,
			Title:     payload.Title,
			State:     payload.State,
			Author:    payload.User.login(),
			Assignee:  payload.Assignee.login(),
			Labels:    []string{},
			HTMLURL:   payload.HTMLURL,
			CreatedAt: parseTime(payload.CreatedAt),
			ClosedAt:  parseTime(payload.ClosedAt),
			UpdatedAt: parseTime(payload.UpdatedAt),
		}
		if issue.State == "" {
			issue.State = "open"
		}
		for _, label := range payload.Labels {
			if label.Name != "" {
				issue.Labels = append(issue.Labels, label.Name)
			}
		}
		issue.ResolutionDays = daysBetween(issue.CreatedAt, issue.ClosedAt)
		issues = append(issues, issue)
	}
	return issues, nil
}

// ListPullRequests lists pull requests in every state.
func (c *DataClient) ListPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	items, err := c.provider.GetPaginated(ctx, repoPath(owner, repo)+"/pulls", url.Values{"state": {"all"}}, c.limits.Pulls)
	if err != nil {
		return nil, err
	}
	pulls := make([]PullRequest, 0, len(items))
	for _, item := range items {
		var payload pullRequestPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			continue
		}
		pull := PullRequest{
			Number:    payload.Number,
			Title:     payload.Title,
			State:     payload.State,
			Author:    payload.User.login(),
			Head:      payload.Head.Ref,
			Base:      payload.Base.Ref,
			Draft:     payload.Draft,
			HTMLURL:   payload.HTMLURL,
			CreatedAt: parseTime(payload.CreatedAt),
			ClosedAt:  parseTime(payload.ClosedAt),
			MergedAt:  parseTime(payload.MergedAt),
		}
		if pull.State == "" {
			pull.State = "open"
		}
		if pull.MergedAt != nil {
			pull.State = "merged"
		}
		pull.MergeDays = daysBetween(pull.CreatedAt, pull.MergedAt)
		pulls = append(pulls, pull)
	}
	return pulls, nil
}

// ListContributors lists repository contributors.
func (c *DataClient) ListContributors(ctx context.Context, owner, repo string) ([]Contributor, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	items, err := c.provider.GetPaginated(ctx, repoPath(owner, repo)+"/contributors", nil, c.limits.Contributors)
	if err != nil {
		return nil, err
	}
	contributors := make([]Contributor, 0, len(items))
	for _, item := range items {
		var payload contributorPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			continue
		}
		contributors = append(contributors, Contributor(payload))
	}
	return contributors, nil
}

// GetLanguages returns bytes of code per language.
func (c *DataClient) GetLanguages(ctx context.Context, owner, repo string) (map[string]int64, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	body, err := c.provider.Get(ctx, repoPath(owner, repo)+"/languages", nil)
	if err != nil {
		return nil, err
	}
	languages := map[string]int64{}
	if body == nil {
		return languages, nil
	}
	if err := json.Unmarshal(body, &languages); err != nil {
		return map[string]int64{}, nil
	}
	return languages, nil
}

// GetTree returns the blobs of the recursive tree at ref.
func (c *DataClient) GetTree(ctx context.Context, owner, repo, ref string) (Tree, error) {
	if err := validateRepo(owner, repo); err != nil {
		return Tree{}, err
	}
	if strings.TrimSpace(ref) == "" {
		return Tree{}, fmt.Errorf("ref is required")
	}
	body, err := c.provider.Get(ctx, repoPath(owner, repo)+"/git/trees/"+ref, url.Values{"recursive": {"1"}})
	if err != nil || body == nil {
		return Tree{Entries: []TreeEntry{}}, err
	}

	var payload treePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Tree{Entries: []TreeEntry{}}, nil
	}
	tree := Tree{Entries: make([]TreeEntry, 0, len(payload.Tree)), Truncated: payload.Truncated}
	for _, item := range payload.Tree {
		if item.Type != "blob" {
			continue
		}
		tree.Entries = append(tree.Entries, TreeEntry{Path: item.Path, Size: item.Size})
	}
	return tree, nil
}

// GetCommitActivity returns the last weeks of weekly commit totals. A 202 status
// reports that GitHub is still computing the statistics.
func (c *DataClient) GetCommitActivity(ctx context.Context, owner, repo string, weeks int) (CommitActivityResult, error) {
	if err := validateRepo(owner, repo); err != nil {
		return CommitActivityResult{}, err
	}
	body, status, err := c.provider.GetWithStatus(ctx, repoPath(owner, repo)+"/stats/commit_activity", nil, c.provider.cacheTTL)
	if err != nil {
		return CommitActivityResult{}, err
	}
	result := CommitActivityResult{Status: endpointStatusFromHTTP(status), Weeks: []WeekActivity{}}
	if body == nil {
		return result, nil
	}

	var payload []commitActivityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return result, nil
	}
	if weeks > 0 && len(payload) > weeks {
		payload = payload[len(payload)-weeks:]
	}
	for _, item := range payload {
		if item.Week == 0 {
			continue
		}
		result.Weeks = append(result.Weeks, WeekActivity{
			WeekStart: time.Unix(item.Week, 0).UTC(),
			Total:     item.Total,
			Days:      item.Days,
		})
	}
	return result, nil
}

// ListMilestones lists milestones in every state.
func (c *DataClient) ListMilestones(ctx context.Context, owner, repo string) ([]Milestone, error) {
	if err := validateRepo(owner, repo); err != nil {
		return nil, err
	}
	items, err := c.provider.GetPaginated(ctx, repoPath(owner, repo)+"/milestones", url.Values{"state": {"all"}}, c.limits.Milestones)
	if err != nil {
		return nil, err
	}
	milestones := make([]Milestone, 0, len(items))
	for _, item := range items {
		var payload milestonePayload
		if err := json.Unmarshal(item, &payload); err != nil {
			continue
		}
		milestones = append(milestones, Milestone{
			Number:       payload.Number,
			Title:        payload.Title,
			State:        payload.State,
			OpenIssues:   payload.OpenIssues,
			ClosedIssues: payload.ClosedIssues,
			DueOn:        parseTime(payload.DueOn),
			Description:  payload.Description,
		})
	}
	sort.SliceStable(milestones, func(i, j int) bool {
		return milestones[i].Number < milestones[j].Number
	})
	return milestones, nil
}

func validateRepo(owner, repo string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if strings.TrimSpace(repo) == "" {
		return fmt.Errorf("repo is required")
	}
	return nil
}

func repoPath(owner, repo string) string {
	return "repos/" + strings.TrimSpace(owner) + "/" + strings.TrimSpace(repo)
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusAccepted:
		return EndpointStatusAccepted
	case http.StatusNoContent:
		return EndpointStatusNoContent
	case http.StatusNotFound:
		return EndpointStatusNotFound
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	return EndpointStatusUnknown
}

// parseTime parses an ISO-8601 timestamp. Unparsable or empty values yield nil.
func parseTime(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// daysBetween returns whole days from start to end, or nil when either is missing.
func daysBetween(start, end *time.Time) *int {
	if start == nil || end == nil {
		return nil
	}
	days := int(end.Sub(*start).Hours() / 24)
	if end.Before(*start) && end.Sub(*start)%(24*time.Hour) != 0 {
		days--
	}
	return &days
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimRight(line, "\r")
}

func shortSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}
	return sha[:7]
}

type userPayload struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

func (u *userPayload) login() string {
	if u == nil {
		return ""
	}
	return u.Login
}

type repositoryPayload struct {
	Name             string   `json:"name"`
	FullName         string   `json:"full_name"`
	Description      string   `json:"description"`
	HTMLURL          string   `json:"html_url"`
	DefaultBranch    string   `json:"default_branch"`
	Language         string   `json:"language"`
	Visibility       string   `json:"visibility"`
	Private          bool     `json:"private"`
	Archived         bool     `json:"archived"`
	StargazersCount  int      `json:"stargazers_count"`
	ForksCount       int      `json:"forks_count"`
	SubscribersCount int      `json:"subscribers_count"`
	OpenIssuesCount  int      `json:"open_issues_count"`
	Size             int      `json:"size"`
	Topics           []string `json:"topics"`
	CreatedAt        *string  `json:"created_at"`
	PushedAt         *string  `json:"pushed_at"`
	UpdatedAt        *string  `json:"updated_at"`
	License          *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

type commitListPayload struct {
	SHA    string       `json:"sha"`
	Author *userPayload `json:"author"`
	Commit struct {
		Message string `json:"message"`
		Author  *struct {
			Name string  `json:"name"`
			Date *string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (p commitListPayload) toCommit() Commit {
	name := ""
	var date *time.Time
	if p.Commit.Author != nil {
		name = p.Commit.Author.Name
		date = parseTime(p.Commit.Author.Date)
	}
	if name == "" {
		name = UnknownAuthor
	}
	login := p.Author.login()
	avatar := ""
	if p.Author != nil {
		avatar = p.Author.AvatarURL
	}
	authorID := login
	if authorID == "" {
		authorID = name
	}
	return Commit{
		SHA:         p.SHA,
		ShortSHA:    shortSHA(p.SHA),
		Message:     firstLine(p.Commit.Message),
		FullMessage: p.Commit.Message,
		AuthorID:    authorID,
		AuthorName:  name,
		AuthorLogin: login,
		AvatarURL:   avatar,
		Date:        date,
	}
}

type comparePayload struct {
	Status       string `json:"status"`
	AheadBy      int    `json:"ahead_by"`
	BehindBy     int    `json:"behind_by"`
	TotalCommits int    `json:"total_commits"`
	Commits      []struct {
		SHA string `json:"sha"`
	} `json:"commits"`
}

type commitDetailPayload struct {
	SHA   string `json:"sha"`
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
		Total     int `json:"total"`
	} `json:"stats"`
	Files []struct {
		Filename  string `json:"filename"`
		Status    string `json:"status"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
		Changes   int    `json:"changes"`
	} `json:"files"`
}

type issuePayload struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	State       string          `json:"state"`
	HTMLURL     string          `json:"html_url"`
	User        *userPayload    `json:"user"`
	Assignee    *userPayload    `json:"assignee"`
	PullRequest json.RawMessage `json:"pull_request"`
	Labels      []struct {
		Name string `json:"name"`
	} `json:"labels"`
	CreatedAt *string `json:"created_at"`
	ClosedAt  *string `json:"closed_at"`
	UpdatedAt *string `json:"updated_at"`
}

type pullRequestPayload struct {
	Number  int          `json:"number"`
	Title   string       `json:"title"`
	State   string       `json:"state"`
	Draft   bool         `json:"draft"`
	HTMLURL string       `json:"html_url"`
	User    *userPayload `json:"user"`
	Head    struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	CreatedAt *string `json:"created_at"`
	ClosedAt  *string `json:"closed_at"`
	MergedAt  *string `json:"merged_at"`
}

type contributorPayload struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	AvatarURL     string `json:"avatar_url"`
	HTMLURL       string `json:"html_url"`
	Type          string `json:"type"`
}

type treePayload struct {
	Truncated bool `json:"truncated"`
	Tree      []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	} `json:"tree"`
}

type commitActivityPayload struct {
	Week  int64 `json:"week"`
	Total int   `json:"total"`
	Days  []int `json:"days"`
}

type milestonePayload struct {
	Number       int     `json:"number"`
	Title        string  `json:"title"`
	State        string  `json:"state"`
	OpenIssues   int     `json:"open_issues"`
	ClosedIssues int     `json:"closed_issues"`
	DueOn        *string `json:"due_on"`
	Description  string  `json:"description"`
}
