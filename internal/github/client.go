// Package github creates and resolves remote repositories for
// provisioned projects.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"
)

// RepoService is what the provisioner needs from GitHub.
type RepoService interface {
	// EnsureRepo creates a public repository and returns its HTTPS clone
	// URL. If the repository already exists it returns the URL of the
	// existing one with existed=true.
	EnsureRepo(ctx context.Context, name string) (url string, existed bool, err error)
}

// Client talks to the GitHub REST API with a personal access token.
type Client struct {
	api    *gh.Client
	owner  string
	logger zerolog.Logger
}

var _ RepoService = (*Client)(nil)

// NewClient creates a client. owner may be empty, in which case the
// token's own user is resolved on first use.
func NewClient(token, owner string, logger zerolog.Logger) *Client {
	return &Client{
		api:    gh.NewClient(nil).WithAuthToken(token),
		owner:  owner,
		logger: logger.With().Str("component", "github").Logger(),
	}
}

func (c *Client) resolveOwner(ctx context.Context) (string, error) {
	if c.owner != "" {
		return c.owner, nil
	}
	user, _, err := c.api.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to resolve token user: %w", err)
	}
	c.owner = user.GetLogin()
	return c.owner, nil
}

// EnsureRepo creates a public repository under the configured owner.
// A name collision is not an error; the existing repository is reused.
func (c *Client) EnsureRepo(ctx context.Context, name string) (string, bool, error) {
	owner, err := c.resolveOwner(ctx)
	if err != nil {
		return "", false, err
	}

	repo := &gh.Repository{
		Name:    gh.String(name),
		Private: gh.Bool(false),
	}
	created, _, err := c.api.Repositories.Create(ctx, "", repo)
	if err == nil {
		c.logger.Info().Str("repo", created.GetFullName()).Msg("repository created")
		return cloneURL(owner, name), false, nil
	}

	if isAlreadyExists(err) {
		c.logger.Info().Str("repo", owner+"/"+name).Msg("repository already exists, reusing")
		return cloneURL(owner, name), true, nil
	}
	return "", false, fmt.Errorf("failed to create repository %s: %w", name, err)
}

func cloneURL(owner, name string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, name)
}

// isAlreadyExists matches the 422 GitHub returns when the repository
// name is taken on the account.
func isAlreadyExists(err error) bool {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity {
		for _, e := range ghErr.Errors {
			if strings.Contains(strings.ToLower(e.Message), "already exists") {
				return true
			}
		}
		return strings.Contains(strings.ToLower(ghErr.Message), "already exists")
	}
	return false
}
