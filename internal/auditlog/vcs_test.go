package auditlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"ghproxy/internal/core"
)

// initPublishTarget creates a working repository with a bare local remote,
// mirroring the deployment layout the publisher operates against.
func initPublishTarget(t *testing.T) (string, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	remoteDir := t.TempDir()
	if _, err := gogit.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteDir},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return dir, repo
}

func TestOpenRepository_NotARepository(t *testing.T) {
	_, err := OpenRepository(t.TempDir(), "origin", "Auditor", "audit@example.com")
	var proxyErr *core.ProxyError
	if !errors.As(err, &proxyErr) {
		t.Fatalf("expected *core.ProxyError, got %v", err)
	}
	if proxyErr.Type != core.ErrorTypePublish {
		t.Errorf("expected publish_error, got %s", proxyErr.Type)
	}
}

func TestGitVersionControl_StageCommitPush(t *testing.T) {
	dir, repo := initPublishTarget(t)
	if err := os.WriteFile(filepath.Join(dir, "app.log"), []byte(`{"request_id":"a"}`+"\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vcs, err := OpenRepository(dir, "origin", "Auditor", "audit@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := vcs.Stage("app.log"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clean, err := vcs.IsClean()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clean {
		t.Fatal("staged new file must report a dirty tree")
	}

	hash, err := vcs.Commit("Audit log update: 2026-01-01 00:00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	commit, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		t.Fatalf("commit %s not reachable: %v", hash, err)
	}
	if commit.Author.Name != "Auditor" || commit.Author.Email != "audit@example.com" {
		t.Errorf("unexpected author %s <%s>", commit.Author.Name, commit.Author.Email)
	}

	clean, err = vcs.IsClean()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !clean {
		t.Error("tree must be clean after commit")
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	branch := head.Name().Short()

	if err := vcs.Push(context.Background(), branch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Pushing again with nothing new must be tolerated.
	if err := vcs.Push(context.Background(), branch); err != nil {
		t.Errorf("expected up-to-date push to succeed, got %v", err)
	}
}

func TestGitVersionControl_UntrackedFilesElsewhereStayClean(t *testing.T) {
	dir, _ := initPublishTarget(t)
	if err := os.WriteFile(filepath.Join(dir, "app.log"), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vcs, err := OpenRepository(dir, "origin", "Auditor", "audit@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := vcs.Stage("app.log"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := vcs.Commit("Audit log update: initial"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A stray file nobody staged must not make the publisher commit.
	if err := os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("tmp"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clean, err := vcs.IsClean()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !clean {
		t.Error("untracked files outside the log artifact must not dirty the tree")
	}
}

func TestGitVersionControl_PushUnknownBranch(t *testing.T) {
	dir, _ := initPublishTarget(t)
	if err := os.WriteFile(filepath.Join(dir, "app.log"), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vcs, err := OpenRepository(dir, "origin", "Auditor", "audit@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := vcs.Stage("app.log"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := vcs.Commit("Audit log update: initial"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = vcs.Push(context.Background(), "no-such-branch")
	var proxyErr *core.ProxyError
	if !errors.As(err, &proxyErr) {
		t.Fatalf("expected *core.ProxyError, got %v", err)
	}
	if proxyErr.Type != core.ErrorTypePublish {
		t.Errorf("expected publish_error, got %s", proxyErr.Type)
	}
}
