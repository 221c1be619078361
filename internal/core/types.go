package core

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// UpstreamRequest describes a single call against the upstream API in
// domain terms: a resource path template plus the parameters that fill it.
type UpstreamRequest struct {
	Method string
	// Resource is a path template relative to the base URL, with named
	// placeholders in braces, e.g. "repos/{owner}/{repo}/contents/{path}".
	Resource string
	// PathParams must satisfy the template's placeholders exactly.
	PathParams map[string]string
	// Query holds optional query parameters.
	Query map[string]string
	// Headers holds per-request header overrides (e.g. a raw media type).
	Headers map[string]string
}

// Expand substitutes PathParams into the Resource template, percent-encoding
// each value. An unresolved placeholder or an unused parameter is a
// construction error; user input is never concatenated unescaped.
func (r UpstreamRequest) Expand() (string, error) {
	used := make(map[string]bool, len(r.PathParams))
	var b strings.Builder

	rest := r.Resource
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", NewInvalidRequestError(r.Resource, 0, "unterminated placeholder in resource template", nil)
		}
		name := rest[open+1 : open+end]
		value, ok := r.PathParams[name]
		if !ok {
			return "", NewInvalidRequestError(r.Resource, 0, "unresolved placeholder {"+name+"} in resource template", nil)
		}
		used[name] = true

		b.WriteString(rest[:open])
		// Multi-segment params (file paths) keep their slashes; each
		// segment is escaped individually.
		segments := strings.Split(value, "/")
		for i, seg := range segments {
			if i > 0 {
				b.WriteByte('/')
			}
			b.WriteString(url.PathEscape(seg))
		}
		rest = rest[open+end+1:]
	}

	for name := range r.PathParams {
		if !used[name] {
			return "", NewInvalidRequestError(r.Resource, 0, "path parameter "+name+" does not match any placeholder", nil)
		}
	}

	return b.String(), nil
}

// UpstreamResponse is the normalized result of a successful upstream call.
// It is immutable once received.
type UpstreamResponse struct {
	StatusCode int
	// Body is the opaque response payload; use JSON for field access.
	Body []byte
	// RateLimitRemaining mirrors the X-RateLimit-Remaining header, -1 when absent.
	RateLimitRemaining int
	// NextPage is the rel="next" pagination link when upstream paginates,
	// empty otherwise. The adapter never follows it.
	NextPage string
}

// JSON returns a gjson view over the response body.
func (r *UpstreamResponse) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// PublishOutcome reports the result of an audit log publish attempt.
// Published=false means there was nothing to publish, which is a success.
type PublishOutcome struct {
	Published bool   `json:"published"`
	Message   string `json:"message"`
}
