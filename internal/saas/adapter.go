// Package saas constructs API clients for SaaS vendors whose seats the
// remediation engine can reclaim. GitHub is the first-class integration;
// other vendors go through the manual review path.
package saas

import (
	"github.com/google/go-github/v66/github"
)

// ClientFactory creates vendor API clients from connection tokens.
type ClientFactory struct{}

func NewClientFactory() *ClientFactory {
	return &ClientFactory{}
}

// GitHubClient returns an authenticated GitHub API client.
func (f *ClientFactory) GitHubClient(token string) *github.Client {
	return github.NewClient(nil).WithAuthToken(token)
}
