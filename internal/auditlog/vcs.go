package auditlog

import (
	"context"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"

	"ghproxy/internal/core"
)

// VersionControl is the narrow capability interface the publisher uses.
// Keeping the publisher behind this interface makes its idempotency logic
// testable with a fake and leaves the transport/credential provisioning
// to the implementation.
type VersionControl interface {
	// Stage adds the given path to the index.
	Stage(path string) error
	// IsClean reports whether the staged tree matches the last commit.
	IsClean() (bool, error)
	// Commit records the staged changes and returns the commit hash.
	Commit(message string) (string, error)
	// Push uploads the given branch to the designated remote. The push
	// is atomic per ref; a rejection surfaces as an error.
	Push(ctx context.Context, branch string) error
}

// gitVersionControl implements VersionControl on go-git, without shelling
// out to a git binary.
type gitVersionControl struct {
	repo   *gogit.Repository
	remote string
	author string
	email  string
}

// OpenRepository opens the working tree at path as the publish target.
// A directory that is not a tracked repository is a publish error.
func OpenRepository(path, remote, author, email string) (VersionControl, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, core.NewPublishError("working tree is not a tracked repository: "+path, err)
	}
	if remote == "" {
		remote = "origin"
	}
	return &gitVersionControl{
		repo:   repo,
		remote: remote,
		author: author,
		email:  email,
	}, nil
}

func (g *gitVersionControl) Stage(path string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return core.NewPublishError("failed to open worktree", err)
	}
	if _, err := wt.Add(path); err != nil {
		return core.NewPublishError("failed to stage "+path, err)
	}
	return nil
}

func (g *gitVersionControl) IsClean() (bool, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return false, core.NewPublishError("failed to open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, core.NewPublishError("failed to read worktree status", err)
	}
	// Only staged changes matter; untracked files elsewhere in the tree
	// must not trigger a publish.
	for _, s := range status {
		if s.Staging != gogit.Unmodified && s.Staging != gogit.Untracked {
			return false, nil
		}
	}
	return true, nil
}

func (g *gitVersionControl) Commit(message string) (string, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return "", core.NewPublishError("failed to open worktree", err)
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  g.author,
			Email: g.email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", core.NewPublishError("failed to create commit", err)
	}
	return hash.String(), nil
}

func (g *gitVersionControl) Push(ctx context.Context, branch string) error {
	refSpec := gitconfig.RefSpec("refs/heads/" + branch + ":refs/heads/" + branch)
	err := g.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: g.remote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return core.NewPublishError("push to "+branch+" rejected", err)
	}
	return nil
}
