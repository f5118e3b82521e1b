package githubapi

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func newTestRequestClient(doer HTTPDoer) *Client {
	policy := RateLimitPolicy{
		MinRemainingThreshold: 0,
		Now: func() time.Time {
			return time.Unix(1739836800, 0)
		},
	}
	return NewClient(doer, RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Second,
	}, policy)
}

func newTestDataClient(t *testing.T, doer HTTPDoer, limits PageLimits) *DataClient {
	t.Helper()

	provider := newTestProvider(t, doer, nil)
	client, err := NewDataClient(provider, DataClientOptions{Limits: limits})
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}
	return client
}

func okResponse(body string) *http.Response {
	return newResponse(http.StatusOK, map[string]string{}, body)
}

func TestNewDataClient(t *testing.T) {
	t.Parallel()

	if _, err := NewDataClient(nil, DataClientOptions{}); err == nil || !contains(err.Error(), "provider is required") {
		t.Fatalf("NewDataClient(nil) error = %v, want provider is required", err)
	}

	client := newTestDataClient(t, &fakeDoer{}, PageLimits{Commits: 2})
	limits := client.Limits()
	if limits.Commits != 2 {
		t.Fatalf("Limits().Commits = %d, want 2", limits.Commits)
	}
	if limits.Issues != DefaultPageLimits().Issues {
		t.Fatalf("Limits().Issues = %d, want default %d", limits.Issues, DefaultPageLimits().Issues)
	}
}

func TestDataClientValidatesRepo(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		owner       string
		repo        string
		errContains string
	}{
		{name: "missing_owner", owner: " ", repo: "hello", errContains: "owner is required"},
		{name: "missing_repo", owner: "octo", repo: "", errContains: "repo is required"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doer := &fakeDoer{}
			client := newTestDataClient(t, doer, PageLimits{})
			_, err := client.ListCommits(context.Background(), tc.owner, tc.repo, "main", 0)
			if err == nil || !contains(err.Error(), tc.errContains) {
				t.Fatalf("ListCommits() error = %v, want %q", err, tc.errContains)
			}
			if doer.callCount != 0 {
				t.Fatalf("callCount = %d, want 0", doer.callCount)
			}
		})
	}
}

func TestDataClientGetRepository(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		response   *http.Response
		wantNil    bool
		wantBranch string
		wantStars  int
	}{
		{
			name: "maps_metadata",
			response: okResponse(`{"name":"hello","full_name":"octo/hello","default_branch":"develop",
				"stargazers_count":42,"forks_count":7,"subscribers_count":3,"open_issues_count":5,
				"license":{"spdx_id":"MIT"},"created_at":"2023-01-01T00:00:00Z"}`),
			wantBranch: "develop",
			wantStars:  42,
		},
		{
			name:       "defaults_branch_to_main",
			response:   okResponse(`{"full_name":"octo/hello"}`),
			wantBranch: "main",
		},
		{
			name:     "not_found_is_nil",
			response: newResponse(http.StatusNotFound, nil, `{"message":"Not Found"}`),
			wantNil:  true,
		},
		{
			name:     "missing_full_name_is_nil",
			response: okResponse(`{"name":"hello"}`),
			wantNil:  true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestDataClient(t, &fakeDoer{responses: []*http.Response{tc.response}}, PageLimits{})
			repository, err := client.GetRepository(context.Background(), "octo", "hello")
			if err != nil {
				t.Fatalf("GetRepository() unexpected error: %v", err)
			}
			if tc.wantNil {
				if repository != nil {
					t.Fatalf("GetRepository() = %+v, want nil", repository)
				}
				return
			}
			if repository == nil {
				t.Fatalf("GetRepository() = nil, want repository")
			}
			if repository.DefaultBranch != tc.wantBranch {
				t.Fatalf("DefaultBranch = %q, want %q", repository.DefaultBranch, tc.wantBranch)
			}
			if repository.Stars != tc.wantStars {
				t.Fatalf("Stars = %d, want %d", repository.Stars, tc.wantStars)
			}
		})
	}
}

func TestDataClientGetRepositoryLicenseAndDates(t *testing.T) {
	t.Parallel()

	client := newTestDataClient(t, &fakeDoer{responses: []*http.Response{
		okResponse(`{"full_name":"octo/hello","license":{"spdx_id":"MIT"},"created_at":"2023-01-01T00:00:00Z","pushed_at":"not-a-date"}`),
	}}, PageLimits{})

	repository, err := client.GetRepository(context.Background(), "octo", "hello")
	if err != nil || repository == nil {
		t.Fatalf("GetRepository() = %v, %v", repository, err)
	}
	if repository.License != "MIT" {
		t.Fatalf("License = %q, want MIT", repository.License)
	}
	if repository.CreatedAt == nil || !repository.CreatedAt.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("CreatedAt = %v", repository.CreatedAt)
	}
	if repository.PushedAt != nil {
		t.Fatalf("PushedAt = %v, want nil for unparsable value", repository.PushedAt)
	}
}

func TestDataClientListCommitsIdentity(t *testing.T) {
	t.Parallel()

	body := `[
		{"sha":"aaaaaaaaaa","author":{"login":"octocat","avatar_url":"https://a/1"},
		 "commit":{"message":"Add login\n\nbody text","author":{"name":"Octo Cat","date":"2024-03-01T10:00:00Z"}}},
		{"sha":"bbbbbbbbbb","author":null,
		 "commit":{"message":"fix: typo","author":{"name":"Jane Dev","date":"2024-03-02T10:00:00Z"}}},
		{"sha":"cccccccccc","author":null,
		 "commit":{"message":"chore","author":{"name":"","date":null}}}
	]`
	doer := &fakeDoer{responses: []*http.Response{okResponse(body)}}
	client := newTestDataClient(t, doer, PageLimits{})

	commits, err := client.ListCommits(context.Background(), "octo", "hello", "feature/x", 0)
	if err != nil {
		t.Fatalf("ListCommits() unexpected error: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("len(commits) = %d, want 3", len(commits))
	}
	if got := doer.requests[0].URL.Query().Get("sha"); got != "feature/x" {
		t.Fatalf("sha query = %q, want feature/x", got)
	}

	testCases := []struct {
		index     int
		wantID    string
		wantName  string
		wantLogin string
		wantShort string
		wantSubj  string
		wantDated bool
	}{
		{index: 0, wantID: "octocat", wantName: "Octo Cat", wantLogin: "octocat", wantShort: "aaaaaaa", wantSubj: "Add login", wantDated: true},
		{index: 1, wantID: "Jane Dev", wantName: "Jane Dev", wantShort: "bbbbbbb", wantSubj: "fix: typo", wantDated: true},
		{index: 2, wantID: UnknownAuthor, wantName: UnknownAuthor, wantShort: "ccccccc", wantSubj: "chore"},
	}
	for _, tc := range testCases {
		commit := commits[tc.index]
		if commit.AuthorID != tc.wantID || commit.AuthorName != tc.wantName || commit.AuthorLogin != tc.wantLogin {
			t.Fatalf("commit %d identity = %q/%q/%q", tc.index, commit.AuthorID, commit.AuthorName, commit.AuthorLogin)
		}
		if commit.ShortSHA != tc.wantShort || commit.Message != tc.wantSubj {
			t.Fatalf("commit %d = %q %q", tc.index, commit.ShortSHA, commit.Message)
		}
		if (commit.Date != nil) != tc.wantDated {
			t.Fatalf("commit %d date = %v, want dated=%t", tc.index, commit.Date, tc.wantDated)
		}
	}
	if commits[0].FullMessage != "Add login\n\nbody text" {
		t.Fatalf("FullMessage = %q", commits[0].FullMessage)
	}
}

func TestDataClientDefaultBranchSHAs(t *testing.T) {
	t.Parallel()

	client := newTestDataClient(t, &fakeDoer{responses: []*http.Response{
		okResponse(`[{"sha":"a1","commit":{"message":"m"}},{"sha":"b2","commit":{"message":"m"}}]`),
	}}, PageLimits{})

	shas, err := client.DefaultBranchSHAs(context.Background(), "octo", "hello", "main")
	if err != nil {
		t.Fatalf("DefaultBranchSHAs() unexpected error: %v", err)
	}
	if len(shas) != 2 {
		t.Fatalf("len(shas) = %d, want 2", len(shas))
	}
	for _, sha := range []string{"a1", "b2"} {
		if _, ok := shas[sha]; !ok {
			t.Fatalf("shas missing %s", sha)
		}
	}
}

func TestDataClientCompareCommits(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{responses: []*http.Response{
		okResponse(`{"status":"ahead","ahead_by":2,"behind_by":0,"total_commits":2,"commits":[{"sha":"c3"},{"sha":"d4"}]}`),
		newResponse(http.StatusNotFound, nil, `{"message":"Not Found"}`),
	}}
	client := newTestDataClient(t, doer, PageLimits{})

	comparison, err := client.CompareCommits(context.Background(), "octo", "hello", "main", "feature")
	if err != nil {
		t.Fatalf("CompareCommits() unexpected error: %v", err)
	}
	if comparison == nil || comparison.AheadBy != 2 || len(comparison.SHAs) != 2 || comparison.SHAs[1] != "d4" {
		t.Fatalf("CompareCommits() = %+v", comparison)
	}
	if got := doer.requests[0].URL.Path; got != "/repos/octo/hello/compare/main...feature" {
		t.Fatalf("compare path = %q", got)
	}

	comparison, err = client.CompareCommits(context.Background(), "octo", "hello", "main", "gone")
	if err != nil || comparison != nil {
		t.Fatalf("CompareCommits() missing = %+v, %v; want nil, nil", comparison, err)
	}

	if _, err := client.CompareCommits(context.Background(), "octo", "hello", "", "feature"); err == nil {
		t.Fatalf("CompareCommits() expected error for empty base")
	}
}

func TestDataClientGetCommitDetail(t *testing.T) {
	t.Parallel()

	client := newTestDataClient(t, &fakeDoer{responses: []*http.Response{
		okResponse(`{"sha":"abc","stats":{"additions":10,"deletions":4,"total":14},
			"files":[{"filename":"main.go","status":"modified","additions":10,"deletions":4,"changes":14}]}`),
	}}, PageLimits{})

	detail, err := client.GetCommitDetail(context.Background(), "octo", "hello", "abc")
	if err != nil {
		t.Fatalf("GetCommitDetail() unexpected error: %v", err)
	}
	if detail == nil || detail.Additions != 10 || detail.Deletions != 4 || len(detail.Files) != 1 {
		t.Fatalf("GetCommitDetail() = %+v", detail)
	}
	if detail.Files[0].Filename != "main.go" {
		t.Fatalf("Files[0].Filename = %q", detail.Files[0].Filename)
	}
}

func TestDataClientListIssues(t *testing.T) {
	t.Parallel()

	body := `[
		{"number":1,"title":"Bug","state":"closed","user":{"login":"alice"},"labels":[{"name":"bug"}],
		 "created_at":"2024-01-01T00:00:00Z","closed_at":"2024-01-03T12:00:00Z"},
		{"number":2,"title":"PR","state":"open","pull_request":{"url":"x"}},
		{"number":3,"title":"Open","state":"","created_at":"2024-01-05T00:00:00Z"}
	]`
	doer := &fakeDoer{responses: []*http.Response{okResponse(body)}}
	client := newTestDataClient(t, doer, PageLimits{})

	issues, err := client.ListIssues(context.Background(), "octo", "hello")
	if err != nil {
		t.Fatalf("ListIssues() unexpected error: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2 (pull requests skipped)", len(issues))
	}
	if issues[0].ResolutionDays == nil || *issues[0].ResolutionDays != 2 {
		t.Fatalf("ResolutionDays = %v, want 2", issues[0].ResolutionDays)
	}
	if issues[0].Author != "alice" || len(issues[0].Labels) != 1 {
		t.Fatalf("issue[0] = %+v", issues[0])
	}
	if issues[1].State != "open" || issues[1].ResolutionDays != nil {
		t.Fatalf("issue[1] = %+v", issues[1])
	}
	if got := doer.requests[0].URL.Query().Get("state"); got != "all" {
		t.Fatalf("state query = %q, want all", got)
	}
}

func TestDataClientListPullRequests(t *testing.T) {
	t.Parallel()

	body := `[
		{"number":10,"title":"Feature","state":"closed","head":{"ref":"feature"},"base":{"ref":"main"},
		 "created_at":"2024-02-01T00:00:00Z","merged_at":"2024-02-04T06:00:00Z"},
		{"number":11,"title":"Other","state":"open","head":{"ref":"other"},"base":{"ref":"develop"}}
	]`
	client := newTestDataClient(t, &fakeDoer{responses: []*http.Response{okResponse(body)}}, PageLimits{})

	pulls, err := client.ListPullRequests(context.Background(), "octo", "hello")
	if err != nil {
		t.Fatalf("ListPullRequests() unexpected error: %v", err)
	}
	if len(pulls) != 2 {
		t.Fatalf("len(pulls) = %d, want 2", len(pulls))
	}
	if pulls[0].State != "merged" || !pulls[0].Merged() {
		t.Fatalf("pulls[0].State = %q, want merged", pulls[0].State)
	}
	if pulls[0].MergeDays == nil || *pulls[0].MergeDays != 3 {
		t.Fatalf("MergeDays = %v, want 3", pulls[0].MergeDays)
	}
	if !pulls[0].Touches("main") || !pulls[0].Touches("feature") || pulls[1].Touches("main") {
		t.Fatalf("Touches() mismatch")
	}
}

func TestDataClientGetCommitActivity(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		response   *http.Response
		wantStatus EndpointStatus
		wantWeeks  int
	}{
		{
			name:       "keeps_last_weeks",
			response:   okResponse(`[{"week":1700000000,"total":1},{"week":1700604800,"total":2},{"week":1701209600,"total":3}]`),
			wantStatus: EndpointStatusOK,
			wantWeeks:  2,
		},
		{
			name:       "accepted_while_computing",
			response:   newResponse(http.StatusAccepted, nil, `{}`),
			wantStatus: EndpointStatusAccepted,
		},
		{
			name:       "no_content_for_empty_repo",
			response:   newResponse(http.StatusNoContent, nil, ``),
			wantStatus: EndpointStatusNoContent,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestDataClient(t, &fakeDoer{responses: []*http.Response{tc.response}}, PageLimits{})
			result, err := client.GetCommitActivity(context.Background(), "octo", "hello", 2)
			if err != nil {
				t.Fatalf("GetCommitActivity() unexpected error: %v", err)
			}
			if result.Status != tc.wantStatus {
				t.Fatalf("Status = %q, want %q", result.Status, tc.wantStatus)
			}
			if len(result.Weeks) != tc.wantWeeks {
				t.Fatalf("len(Weeks) = %d, want %d", len(result.Weeks), tc.wantWeeks)
			}
			if tc.wantWeeks == 2 && result.Weeks[1].Total != 3 {
				t.Fatalf("last week total = %d, want 3", result.Weeks[1].Total)
			}
		})
	}
}

func TestDataClientSmallListings(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{responses: []*http.Response{
		okResponse(`[{"name":"main"},{"name":"feature"},{"name":""}]`),
		okResponse(`[{"login":"alice","contributions":30},{"login":"bob","contributions":5}]`),
		okResponse(`{"Go":1200,"Shell":80}`),
		okResponse(`{"truncated":true,"tree":[{"path":"cmd","type":"tree"},{"path":"main.go","type":"blob","size":512}]}`),
		okResponse(`[{"number":3,"title":"v2","state":"open"},{"number":1,"title":"v1","state":"closed","due_on":"2024-01-01T00:00:00Z"}]`),
	}}
	client := newTestDataClient(t, doer, PageLimits{})
	ctx := context.Background()

	branches, err := client.ListBranches(ctx, "octo", "hello")
	if err != nil || len(branches) != 2 || branches[1] != "feature" {
		t.Fatalf("ListBranches() = %v, %v", branches, err)
	}

	contributors, err := client.ListContributors(ctx, "octo", "hello")
	if err != nil || len(contributors) != 2 || contributors[0].Contributions != 30 {
		t.Fatalf("ListContributors() = %+v, %v", contributors, err)
	}

	languages, err := client.GetLanguages(ctx, "octo", "hello")
	if err != nil || languages["Go"] != 1200 {
		t.Fatalf("GetLanguages() = %v, %v", languages, err)
	}

	tree, err := client.GetTree(ctx, "octo", "hello", "main")
	if err != nil || len(tree.Entries) != 1 || !tree.Truncated || tree.Entries[0].Size != 512 {
		t.Fatalf("GetTree() = %+v, %v", tree, err)
	}

	milestones, err := client.ListMilestones(ctx, "octo", "hello")
	if err != nil || len(milestones) != 2 || milestones[0].Number != 1 || milestones[0].DueOn == nil {
		t.Fatalf("ListMilestones() = %+v, %v", milestones, err)
	}
}

func TestDaysBetween(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		end  time.Time
		want int
	}{
		{name: "same_day", end: base.Add(3 * time.Hour), want: 0},
		{name: "floors_partial_days", end: base.Add(47 * time.Hour), want: 1},
		{name: "exact_days", end: base.Add(72 * time.Hour), want: 3},
		{name: "negative_floors_down", end: base.Add(-1 * time.Hour), want: -1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			end := tc.end
			got := daysBetween(&base, &end)
			if got == nil || *got != tc.want {
				t.Fatalf("daysBetween() = %v, want %d", got, tc.want)
			}
		})
	}
	if daysBetween(nil, &base) != nil {
		t.Fatalf("daysBetween(nil, end) should be nil")
	}
}
