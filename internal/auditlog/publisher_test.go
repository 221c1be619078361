package auditlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ghproxy/internal/core"
)

// fakeVCS records the operations the publisher performs.
type fakeVCS struct {
	mu       sync.Mutex
	staged   []string
	clean    bool
	commits  []string
	pushes   int
	stageErr error
	pushErr  error
}

func (f *fakeVCS) Stage(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stageErr != nil {
		return f.stageErr
	}
	f.staged = append(f.staged, path)
	return nil
}

func (f *fakeVCS) IsClean() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clean, nil
}

func (f *fakeVCS) Commit(message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, message)
	// Once committed the staged tree matches HEAD again.
	f.clean = true
	return "abc1234", nil
}

func (f *fakeVCS) Push(_ context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes++
	return nil
}

type recordingHooks struct {
	outcomes []string
}

func (r *recordingHooks) ObservePublish(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestPublish_CommitsAndPushesWhenDirty(t *testing.T) {
	vcs := &fakeVCS{clean: false}
	pub := NewPublisher(vcs, nil, "app.log", "main")

	outcome, err := pub.Publish(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Published {
		t.Error("expected a published outcome")
	}
	if !strings.Contains(outcome.Message, "abc1234") {
		t.Errorf("expected commit hash in message, got %q", outcome.Message)
	}
	if len(vcs.staged) != 1 || vcs.staged[0] != "app.log" {
		t.Errorf("expected app.log staged once, got %v", vcs.staged)
	}
	if len(vcs.commits) != 1 {
		t.Fatalf("expected one commit, got %d", len(vcs.commits))
	}
	if !strings.HasPrefix(vcs.commits[0], "Audit log update: ") {
		t.Errorf("unexpected commit message %q", vcs.commits[0])
	}
	if vcs.pushes != 1 {
		t.Errorf("expected one push, got %d", vcs.pushes)
	}
}

func TestPublish_IdempotentWhenClean(t *testing.T) {
	vcs := &fakeVCS{clean: false}
	pub := NewPublisher(vcs, nil, "app.log", "main")

	if _, err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Nothing appended since: the second publish must not commit or push.
	outcome, err := pub.Publish(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Published {
		t.Error("expected an unchanged outcome")
	}
	if outcome.Message != "no new audit entries to publish" {
		t.Errorf("unexpected message %q", outcome.Message)
	}
	if len(vcs.commits) != 1 {
		t.Errorf("expected no second commit, got %d", len(vcs.commits))
	}
	if vcs.pushes != 1 {
		t.Errorf("expected no second push, got %d", vcs.pushes)
	}
}

func TestPublish_PushRejection(t *testing.T) {
	vcs := &fakeVCS{clean: false, pushErr: core.NewPublishError("push to main rejected", errors.New("non-fast-forward"))}
	pub := NewPublisher(vcs, nil, "app.log", "main")

	_, err := pub.Publish(context.Background())
	var proxyErr *core.ProxyError
	if !errors.As(err, &proxyErr) {
		t.Fatalf("expected *core.ProxyError, got %v", err)
	}
	if proxyErr.Type != core.ErrorTypePublish {
		t.Errorf("expected publish_error, got %s", proxyErr.Type)
	}
	if vcs.pushes != 0 {
		t.Errorf("expected zero successful pushes, got %d", vcs.pushes)
	}
}

func TestPublish_StageErrorSkipsCommit(t *testing.T) {
	vcs := &fakeVCS{stageErr: core.NewPublishError("failed to stage app.log", nil)}
	pub := NewPublisher(vcs, nil, "app.log", "main")

	if _, err := pub.Publish(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if len(vcs.commits) != 0 {
		t.Errorf("expected no commit after stage failure, got %d", len(vcs.commits))
	}
}

func TestPublish_ObservesOutcomes(t *testing.T) {
	vcs := &fakeVCS{clean: false}
	hooks := &recordingHooks{}
	pub := NewPublisher(vcs, nil, "app.log", "main")
	pub.SetHooks(hooks)

	_, _ = pub.Publish(context.Background())
	_, _ = pub.Publish(context.Background())
	vcs.pushErr = errors.New("remote gone")
	vcs.clean = false
	_, _ = pub.Publish(context.Background())

	want := []string{"published", "unchanged", "error"}
	if len(hooks.outcomes) != len(want) {
		t.Fatalf("expected %v, got %v", want, hooks.outcomes)
	}
	for i := range want {
		if hooks.outcomes[i] != want[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, want[i], hooks.outcomes[i])
		}
	}
}

func TestPublish_ConcurrentCallsSerialize(t *testing.T) {
	vcs := &fakeVCS{clean: false}
	pub := NewPublisher(vcs, nil, "app.log", "main")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pub.Publish(context.Background())
		}()
	}
	wg.Wait()

	// The first publish commits and leaves the tree clean; every other
	// call must observe that and do nothing.
	if len(vcs.commits) != 1 {
		t.Errorf("expected exactly one commit, got %d", len(vcs.commits))
	}
	if vcs.pushes != 1 {
		t.Errorf("expected exactly one push, got %d", vcs.pushes)
	}
}

func TestPublish_FlushesWriterBeforeStaging(t *testing.T) {
	logPath := t.TempDir() + "/app.log"
	writer, err := NewWriter(WriterConfig{Path: logPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		_ = writer.Close()
	}()

	writer.Write(&Entry{RequestID: "req-1", Method: "GET", Path: "/repo/o/r", Status: 200})

	vcs := &fakeVCS{clean: false}
	pub := NewPublisher(vcs, writer, logPath, "main")
	if _, err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "req-1") {
		t.Error("expected buffered entry on disk before staging")
	}
}

func TestPublish_RepoOutsideWorkingDirectory(t *testing.T) {
	// The log artifact lives inside the audit repository's working tree,
	// not the process working directory: the writer must append to
	// <repo>/<log path> while the publisher stages the worktree-relative
	// path.
	repoDir, repo := initPublishTarget(t)

	writer, err := NewWriter(WriterConfig{Path: filepath.Join(repoDir, "app.log")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		_ = writer.Close()
	}()
	writer.Write(&Entry{RequestID: "req-1", Method: "GET", Path: "/repo/o/r", Status: 200})

	vcs, err := OpenRepository(repoDir, "origin", "Auditor", "audit@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Seed commit so the branch ref exists for the push.
	if err := os.WriteFile(filepath.Join(repoDir, "README.md"), []byte("audit trail\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := vcs.Stage("README.md"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := vcs.Commit("Initial commit"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pub := NewPublisher(vcs, writer, "app.log", head.Name().Short())
	outcome, err := pub.Publish(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Published {
		t.Fatalf("expected a published outcome, got %+v", outcome)
	}
}
