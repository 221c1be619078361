// Package server provides the HTTP router in front of the mediation core.
// It owns the mapping between inbound paths and core calls, and between
// the core error taxonomy and HTTP statuses; the core itself is
// transport-agnostic.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"iter"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"ghproxy/internal/contents"
	"ghproxy/internal/core"
)

// maxInlineFileSize is the soft limit for returning a whole file in one
// response; larger files must go through the line-range endpoint.
const maxInlineFileSize = 1024 * 1024

// Upstream is the adapter boundary the router calls through.
type Upstream interface {
	Do(ctx context.Context, req core.UpstreamRequest) (*core.UpstreamResponse, error)
}

// LineReader is the chunked content reader boundary.
type LineReader interface {
	ReadLines(ctx context.Context, file contents.FileRef, rng contents.LineRange) iter.Seq2[string, error]
}

// Publisher is the audit log publisher boundary.
type Publisher interface {
	Publish(ctx context.Context) (core.PublishOutcome, error)
}

// Handler holds the HTTP handlers.
type Handler struct {
	upstream  Upstream
	reader    LineReader
	publisher Publisher
}

// NewHandler creates a new handler over the core boundaries.
func NewHandler(upstream Upstream, reader LineReader, publisher Publisher) *Handler {
	return &Handler{
		upstream:  upstream,
		reader:    reader,
		publisher: publisher,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetRepo handles GET /repo/:owner/:repo
func (h *Handler) GetRepo(c echo.Context) error {
	return h.proxy(c, "repos/{owner}/{repo}", ownerRepo(c), nil)
}

// ListContents handles GET /repo/:owner/:repo/contents?path=
func (h *Handler) ListContents(c echo.Context) error {
	resource := "repos/{owner}/{repo}/contents"
	params := ownerRepo(c)
	if path := c.QueryParam("path"); path != "" {
		resource = "repos/{owner}/{repo}/contents/{path}"
		params["path"] = path
	}
	return h.proxy(c, resource, params, nil)
}

// GetCommits handles GET /repo/:owner/:repo/commits
func (h *Handler) GetCommits(c echo.Context) error {
	return h.proxy(c, "repos/{owner}/{repo}/commits", ownerRepo(c), pageQuery(c))
}

// ListPulls handles GET /repo/:owner/:repo/pulls
func (h *Handler) ListPulls(c echo.Context) error {
	return h.proxy(c, "repos/{owner}/{repo}/pulls", ownerRepo(c), pageQuery(c))
}

// ListIssues handles GET /repo/:owner/:repo/issues
func (h *Handler) ListIssues(c echo.Context) error {
	return h.proxy(c, "repos/{owner}/{repo}/issues", ownerRepo(c), pageQuery(c))
}

// ListBranches handles GET /repo/:owner/:repo/branches
func (h *Handler) ListBranches(c echo.Context) error {
	return h.proxy(c, "repos/{owner}/{repo}/branches", ownerRepo(c), pageQuery(c))
}

// TrafficViews handles GET /repo/:owner/:repo/traffic/views
func (h *Handler) TrafficViews(c echo.Context) error {
	return h.proxy(c, "repos/{owner}/{repo}/traffic/views", ownerRepo(c), nil)
}

// TrafficClones handles GET /repo/:owner/:repo/traffic/clones
func (h *Handler) TrafficClones(c echo.Context) error {
	return h.proxy(c, "repos/{owner}/{repo}/traffic/clones", ownerRepo(c), nil)
}

// GetFile handles GET /repo/:owner/:repo/file/*
// The content comes back base64-encoded from upstream and is decoded here.
// Files beyond the inline size limit are rejected; the line-range endpoint
// handles those.
func (h *Handler) GetFile(c echo.Context) error {
	path := c.Param("*")
	if path == "" {
		return handleError(c, core.NewInvalidRequestError("", http.StatusBadRequest, "file path is required", nil))
	}

	params := ownerRepo(c)
	params["path"] = path
	resp, err := h.upstream.Do(c.Request().Context(), core.UpstreamRequest{
		Method:     http.MethodGet,
		Resource:   "repos/{owner}/{repo}/contents/{path}",
		PathParams: params,
	})
	if err != nil {
		return handleError(c, err)
	}

	doc := resp.JSON()
	if doc.IsArray() {
		// Directories come back as JSON arrays; this endpoint serves files.
		return handleError(c, core.NewNotFoundError(path, "path is a directory, not a file"))
	}
	if size := doc.Get("size").Int(); size > maxInlineFileSize {
		return handleError(c, core.NewInvalidRequestError(path, http.StatusRequestEntityTooLarge,
			"file too large to retrieve in a single request", nil))
	}

	content := doc.Get("content").String()
	if doc.Get("encoding").String() == "base64" {
		decoded, decodeErr := base64.StdEncoding.DecodeString(stripNewlines(content))
		if decodeErr != nil {
			return handleError(c, core.NewDecodingError(path, "failed to decode file content"))
		}
		content = string(decoded)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":    doc.Get("name").String(),
		"path":    doc.Get("path").String(),
		"sha":     doc.Get("sha").String(),
		"size":    doc.Get("size").Int(),
		"content": content,
	})
}

// GetFileLines handles GET /repo/:owner/:repo/lines/*?start_line=&end_line=
// Lines are numbered from 0; end_line is exclusive and unbounded when omitted.
func (h *Handler) GetFileLines(c echo.Context) error {
	path := c.Param("*")
	if path == "" {
		return handleError(c, core.NewInvalidRequestError("", http.StatusBadRequest, "file path is required", nil))
	}

	rng := contents.LineRange{Start: 0, End: contents.NoLimit}
	if v := c.QueryParam("start_line"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return handleError(c, core.NewInvalidRequestError(path, http.StatusBadRequest, "start_line must be a non-negative integer", err))
		}
		rng.Start = n
	}
	if v := c.QueryParam("end_line"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return handleError(c, core.NewInvalidRequestError(path, http.StatusBadRequest, "end_line must be a non-negative integer", err))
		}
		rng.End = n
	}

	file := contents.FileRef{
		Owner: c.Param("owner"),
		Repo:  c.Param("repo"),
		Path:  path,
	}

	lines := []string{}
	for line, err := range h.reader.ReadLines(c.Request().Context(), file, rng) {
		if err != nil {
			return handleError(c, err)
		}
		lines = append(lines, line)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"start_line": rng.Start,
		"lines":      lines,
	})
}

// PushLogs handles POST /logs/push
func (h *Handler) PushLogs(c echo.Context) error {
	outcome, err := h.publisher.Publish(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

// proxy executes an upstream request and relays the opaque JSON body.
// Pagination and rate-limit context surface as response headers.
func (h *Handler) proxy(c echo.Context, resource string, params, query map[string]string) error {
	resp, err := h.upstream.Do(c.Request().Context(), core.UpstreamRequest{
		Method:     http.MethodGet,
		Resource:   resource,
		PathParams: params,
		Query:      query,
	})
	if err != nil {
		return handleError(c, err)
	}

	if resp.NextPage != "" {
		c.Response().Header().Set("X-Next-Page", resp.NextPage)
	}
	if resp.RateLimitRemaining >= 0 {
		c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(resp.RateLimitRemaining))
	}

	return c.JSONBlob(http.StatusOK, resp.Body)
}

// handleError converts proxy errors to HTTP responses. The taxonomy→status
// mapping lives here, not in the core.
func handleError(c echo.Context, err error) error {
	var proxyErr *core.ProxyError
	if errors.As(err, &proxyErr) {
		return c.JSON(proxyErr.HTTPStatusCode(), proxyErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}

func ownerRepo(c echo.Context) map[string]string {
	return map[string]string{
		"owner": c.Param("owner"),
		"repo":  c.Param("repo"),
	}
}

// pageQuery forwards upstream pagination parameters when the client sets them.
func pageQuery(c echo.Context) map[string]string {
	query := map[string]string{}
	for _, key := range []string{"page", "per_page", "state"} {
		if v := c.QueryParam(key); v != "" {
			query[key] = v
		}
	}
	if len(query) == 0 {
		return nil
	}
	return query
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
