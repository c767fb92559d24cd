// Package gitremote lists repository branches on GitHub so branch prompts
// can offer quick-picks beyond the last-used branch.
package gitremote

import (
	"context"
	"fmt"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// branchLister is the slice of the GitHub repositories API we consume.
type branchLister interface {
	ListBranches(ctx context.Context, owner, repo string, opts *github.BranchListOptions) ([]*github.Branch, *github.Response, error)
}

// Client lists branches for a single repository.
type Client struct {
	repos branchLister
	owner string
	repo  string
}

// New creates a Client authenticated with a personal access token.
func New(token, owner, repo string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("gitremote: token is required")
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("gitremote: owner and repo are required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	gh := github.NewClient(oauth2.NewClient(context.Background(), ts))
	return &Client{repos: gh.Repositories, owner: owner, repo: repo}, nil
}

// Branches returns the first page of branch names for the repository.
func (c *Client) Branches(ctx context.Context) ([]string, error) {
	opts := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 10},
	}
	branches, _, err := c.repos.ListBranches(ctx, c.owner, c.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("gitremote: list branches: %w", err)
	}
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.GetName())
	}
	return names, nil
}
