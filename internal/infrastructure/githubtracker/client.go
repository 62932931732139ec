// Package githubtracker adapts the GitHub REST API to ports.IssueTracker.
package githubtracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"sentinel/internal/bootstrap/config"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
)

type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

// New builds a tracker client from configuration. A personal access token
// takes precedence; GitHub App installation credentials are used otherwise.
func New(ctx context.Context, cfg config.GitHubConfig) (*Client, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	owner, repo, err := splitRepo(cfg.Repo)
	if err != nil {
		return nil, err
	}

	httpClient, err := newHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		gh:    github.NewClient(httpClient),
		owner: owner,
		repo:  repo,
	}, nil
}

func newHTTPClient(ctx context.Context, cfg config.GitHubConfig) (*http.Client, error) {
	if token := strings.TrimSpace(cfg.Token); token != "" {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		return oauth2.NewClient(ctx, source), nil
	}

	if cfg.App.Configured() {
		transport, err := ghinstallation.NewKeyFromFile(
			http.DefaultTransport,
			cfg.App.ID,
			cfg.App.InstallationID,
			cfg.App.PrivateKeyFile,
		)
		if err != nil {
			return nil, errs.Wrap(err, "load github app key")
		}
		return &http.Client{Transport: transport}, nil
	}

	return nil, errors.New("github token or app credentials are required")
}

func splitRepo(full string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(full), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, want owner/name", full)
	}
	return parts[0], parts[1], nil
}

func (c *Client) GetIssue(ctx context.Context, number int) (ports.Issue, error) {
	issue, resp, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return ports.Issue{}, mapError(resp, err)
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	return ports.Issue{
		Number:   issue.GetNumber(),
		Title:    issue.GetTitle(),
		Body:     issue.GetBody(),
		Labels:   labels,
		RepoName: c.owner + "/" + c.repo,
		Closed:   issue.GetState() == "closed",
	}, nil
}

func (c *Client) AddComment(ctx context.Context, number int, body string) error {
	_, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	return mapError(resp, err)
}

func (c *Client) AddLabels(ctx context.Context, number int, labels ...string) error {
	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels)
	return mapError(resp, err)
}

// RemoveLabel tolerates a missing label: the tracker may already have
// dropped it, and removal is used in cleanup paths that must not fail.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	resp, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label)
	if err != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return mapError(resp, err)
}

func (c *Client) SetLabels(ctx context.Context, number int, labels []string) error {
	_, resp, err := c.gh.Issues.ReplaceLabelsForIssue(ctx, c.owner, c.repo, number, labels)
	return mapError(resp, err)
}

func (c *Client) CreatePullRequest(ctx context.Context, input ports.PullRequestInput) (ports.PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.Ptr(input.Title),
		Body:  github.Ptr(input.Body),
		Head:  github.Ptr(input.Head),
		Base:  github.Ptr(input.Base),
	})
	if err != nil {
		return ports.PullRequest{}, mapError(resp, err)
	}
	return ports.PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
	}, nil
}

func (c *Client) CloseIssue(ctx context.Context, number int) error {
	_, resp, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, &github.IssueRequest{
		State:       github.Ptr("closed"),
		StateReason: github.Ptr("completed"),
	})
	return mapError(resp, err)
}
