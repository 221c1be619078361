package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ghproxy/internal/core"
)

// PublishHooks receives one observation per publish attempt.
type PublishHooks interface {
	ObservePublish(outcome string)
}

// Publisher commits and pushes the accumulated audit log to the
// designated remote branch. Publishing is idempotent: when the staged log
// matches the last commit, no commit is created and no remote operation
// is performed.
//
// Concurrent invocations are serialized; interleaved stage/commit/push
// sequences against the same working tree are not safe to run in parallel.
type Publisher struct {
	mu      sync.Mutex
	vcs     VersionControl
	writer  *Writer
	logPath string
	branch  string
	hooks   PublishHooks
}

// NewPublisher creates a Publisher for the given log artifact path and
// branch. writer may be nil when the log file is maintained externally.
func NewPublisher(vcs VersionControl, writer *Writer, logPath, branch string) *Publisher {
	return &Publisher{
		vcs:     vcs,
		writer:  writer,
		logPath: logPath,
		branch:  branch,
	}
}

// SetHooks attaches publish observability. Must be called before use.
func (p *Publisher) SetHooks(hooks PublishHooks) {
	p.hooks = hooks
}

// Publish stages the log artifact and, when it changed since the last
// commit, commits with a timestamped message and pushes. A push rejection
// (e.g. non-fast-forward) surfaces as a publish error and is not retried
// here: blind retry risks pushing over concurrent external changes.
func (p *Publisher) Publish(ctx context.Context) (core.PublishOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil {
		if err := p.writer.Flush(ctx); err != nil {
			p.observe("error")
			return core.PublishOutcome{}, core.NewPublishError("failed to flush audit log writer", err)
		}
	}

	if err := p.vcs.Stage(p.logPath); err != nil {
		p.observe("error")
		return core.PublishOutcome{}, err
	}

	clean, err := p.vcs.IsClean()
	if err != nil {
		p.observe("error")
		return core.PublishOutcome{}, err
	}
	if clean {
		slog.Info("audit log unchanged, nothing to publish", "path", p.logPath)
		p.observe("unchanged")
		return core.PublishOutcome{
			Published: false,
			Message:   "no new audit entries to publish",
		}, nil
	}

	message := "Audit log update: " + time.Now().UTC().Format("2006-01-02 15:04:05")
	hash, err := p.vcs.Commit(message)
	if err != nil {
		p.observe("error")
		return core.PublishOutcome{}, err
	}

	if err := p.vcs.Push(ctx, p.branch); err != nil {
		p.observe("error")
		return core.PublishOutcome{}, err
	}

	slog.Info("audit log published", "commit", hash, "branch", p.branch)
	p.observe("published")
	return core.PublishOutcome{
		Published: true,
		Message:   "published commit " + hash + " to " + p.branch,
	}, nil
}

func (p *Publisher) observe(outcome string) {
	if p.hooks != nil {
		p.hooks.ObservePublish(outcome)
	}
}
