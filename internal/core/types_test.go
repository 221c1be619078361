package core

import (
	"errors"
	"testing"
)

func TestUpstreamRequest_Expand(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		params   map[string]string
		want     string
	}{
		{
			name:     "simple substitution",
			resource: "repos/{owner}/{repo}",
			params:   map[string]string{"owner": "octocat", "repo": "hello"},
			want:     "repos/octocat/hello",
		},
		{
			name:     "percent encoding",
			resource: "repos/{owner}/{repo}",
			params:   map[string]string{"owner": "a b", "repo": "x?y"},
			want:     "repos/a%20b/x%3Fy",
		},
		{
			name:     "multi-segment path keeps slashes",
			resource: "repos/{owner}/{repo}/contents/{path}",
			params:   map[string]string{"owner": "o", "repo": "r", "path": "docs/guide/read me.md"},
			want:     "repos/o/r/contents/docs/guide/read%20me.md",
		},
		{
			name:     "no placeholders",
			resource: "rate_limit",
			params:   nil,
			want:     "rate_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := UpstreamRequest{Resource: tt.resource, PathParams: tt.params}
			got, err := req.Expand()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUpstreamRequest_Expand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		params   map[string]string
	}{
		{
			name:     "unresolved placeholder",
			resource: "repos/{owner}/{repo}",
			params:   map[string]string{"owner": "octocat"},
		},
		{
			name:     "unused parameter",
			resource: "repos/{owner}/{repo}",
			params:   map[string]string{"owner": "o", "repo": "r", "extra": "x"},
		},
		{
			name:     "unterminated placeholder",
			resource: "repos/{owner",
			params:   map[string]string{"owner": "o"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := UpstreamRequest{Resource: tt.resource, PathParams: tt.params}
			_, err := req.Expand()
			if err == nil {
				t.Fatal("expected a construction error")
			}
			var proxyErr *ProxyError
			if !errors.As(err, &proxyErr) {
				t.Fatalf("expected *ProxyError, got %T", err)
			}
			if proxyErr.Type != ErrorTypeInvalidRequest {
				t.Errorf("expected invalid_request_error, got %s", proxyErr.Type)
			}
		})
	}
}

func TestUpstreamResponse_JSON(t *testing.T) {
	resp := &UpstreamResponse{Body: []byte(`{"name":"hello","size":42}`)}
	if got := resp.JSON().Get("name").String(); got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
	if got := resp.JSON().Get("size").Int(); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}
