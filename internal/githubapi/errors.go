package githubapi

import (
	"errors"
	"fmt"
)

// ErrInvalidRepoURL reports a repository URL that does not point at GitHub.
var ErrInvalidRepoURL = errors.New("invalid github repository url")

// ProviderError is a hard GitHub API failure.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("GitHub API %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether the failure is a rate-limit rejection.
func (e *ProviderError) IsRateLimited() bool {
	return e.StatusCode == 429 || (e.StatusCode == 403 && containsFold(e.Message, "rate limit"))
}
