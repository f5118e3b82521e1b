package githubapi

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseRepoURL extracts owner, repo and the optional branch from a GitHub URL
// such as https://github.com/owner/repo/tree/feature/login. The branch is empty
// when the URL does not name one.
func ParseRepoURL(raw string) (owner, repo, branch string, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", "", fmt.Errorf("%w: empty url", ErrInvalidRepoURL)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}
	if !strings.Contains(strings.ToLower(parsed.Host), "github.com") {
		return "", "", "", fmt.Errorf("%w: not a github url", ErrInvalidRepoURL)
	}

	var parts []string
	for _, part := range strings.Split(parsed.Path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("%w: cannot extract owner/repo", ErrInvalidRepoURL)
	}

	owner = parts[0]
	repo = strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return "", "", "", fmt.Errorf("%w: cannot extract owner/repo", ErrInvalidRepoURL)
	}
	if len(parts) >= 4 && parts[2] == "tree" {
		branch = strings.Join(parts[3:], "/")
	}
	return owner, repo, branch, nil
}
