// Package contents retrieves large file content from the upstream API in
// bounded byte chunks and exposes a line-range view without loading the
// whole file. Chunks are not aligned to line boundaries; an incomplete
// trailing line is carried over and completed by the next chunk.
package contents

import (
	"bytes"
	"context"
	"io"
	"iter"
	"net/http"
	"unicode/utf8"

	"ghproxy/internal/core"
	"ghproxy/internal/upstream"
)

// DefaultChunkSize is the byte size of each chunk consumed from the
// upstream blob stream.
const DefaultChunkSize = 50_000

// NoLimit as a LineRange end means the range is unbounded.
const NoLimit = -1

// FileRef identifies a file within an upstream repository.
type FileRef struct {
	Owner string
	Repo  string
	Path  string
}

func (f FileRef) String() string {
	return f.Owner + "/" + f.Repo + "/" + f.Path
}

// LineRange selects lines [Start, End), numbered from 0. End < 0 means
// unbounded. A range with End <= Start selects nothing.
type LineRange struct {
	Start int
	End   int
}

// BlobSource is the subset of the upstream adapter the reader needs.
type BlobSource interface {
	Do(ctx context.Context, req core.UpstreamRequest) (*core.UpstreamResponse, error)
	DoStream(ctx context.Context, req core.UpstreamRequest) (io.ReadCloser, error)
}

// ChunkState holds the incomplete trailing line left from the previous
// chunk. It is created fresh per read session, mutated once per chunk,
// and discarded when the session ends. Never shared across sessions.
type ChunkState struct {
	carry []byte
}

// split prepends the carried-over fragment, returns the complete lines in
// the combined data, and retains the trailing partial segment (if any) as
// the new carry-over. Line terminators (\n, \r\n) are stripped.
func (s *ChunkState) split(chunk []byte) [][]byte {
	data := append(s.carry, chunk...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := data[:i]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		lines = append(lines, line)
		data = data[i+1:]
	}
	s.carry = data
	return lines
}

// flush returns the remaining carry-over and clears it. At end of stream
// this is emitted as a final line even though it lacks a terminator,
// because no further chunk will complete it.
func (s *ChunkState) flush() ([]byte, bool) {
	if len(s.carry) == 0 {
		return nil, false
	}
	line := s.carry
	s.carry = nil
	return line, true
}

// Reader streams file content through the upstream adapter.
type Reader struct {
	source    BlobSource
	chunkSize int
}

// NewReader creates a Reader with the default chunk size.
func NewReader(source BlobSource) *Reader {
	return &Reader{source: source, chunkSize: DefaultChunkSize}
}

// NewReaderWithChunkSize creates a Reader with a custom chunk size,
// falling back to the default for non-positive sizes.
func NewReaderWithChunkSize(source BlobSource, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{source: source, chunkSize: chunkSize}
}

// ReadLines returns a lazy, finite, non-restartable sequence of the lines
// of the given file within rng. All lines preceding the range are still
// scanned to keep numbering and carry-over state correct; there is no
// seek-ahead. A start beyond the end of the file yields an empty sequence,
// not an error. Binary or non-UTF-8 content yields a decoding error.
//
// Abandoning the iteration early closes the underlying stream and
// discards the session state. Restarting requires a new call.
func (r *Reader) ReadLines(ctx context.Context, file FileRef, rng LineRange) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if rng.End >= 0 && rng.End <= rng.Start {
			return
		}

		sha, err := r.resolveBlobSHA(ctx, file)
		if err != nil {
			yield("", err)
			return
		}

		stream, err := r.source.DoStream(ctx, core.UpstreamRequest{
			Method:   http.MethodGet,
			Resource: "repos/{owner}/{repo}/git/blobs/{sha}",
			PathParams: map[string]string{
				"owner": file.Owner,
				"repo":  file.Repo,
				"sha":   sha,
			},
			Headers: map[string]string{"Accept": upstream.AcceptRaw},
		})
		if err != nil {
			yield("", err)
			return
		}
		defer func() {
			_ = stream.Close()
		}()

		state := &ChunkState{}
		lineNo := 0
		buf := make([]byte, r.chunkSize)

		emit := func(line []byte) (done, ok bool) {
			if !utf8.Valid(line) || bytes.IndexByte(line, 0) >= 0 {
				return true, yield("", core.NewDecodingError(file.String(), "content is not decodable text"))
			}
			if lineNo >= rng.Start {
				if !yield(string(line), nil) {
					return true, false
				}
			}
			lineNo++
			if rng.End >= 0 && lineNo >= rng.End {
				return true, true
			}
			return false, true
		}

		for {
			n, readErr := stream.Read(buf)
			if n > 0 {
				for _, line := range state.split(buf[:n]) {
					if done, _ := emit(line); done {
						return
					}
				}
			}
			if readErr == io.EOF {
				if line, ok := state.flush(); ok {
					emit(line)
				}
				return
			}
			if readErr != nil {
				yield("", core.NewTransportError(file.String(), "blob stream interrupted: "+readErr.Error(), readErr))
				return
			}
		}
	}
}

// resolveBlobSHA looks up the file's blob SHA via the contents endpoint.
func (r *Reader) resolveBlobSHA(ctx context.Context, file FileRef) (string, error) {
	resp, err := r.source.Do(ctx, core.UpstreamRequest{
		Method:   http.MethodGet,
		Resource: "repos/{owner}/{repo}/contents/{path}",
		PathParams: map[string]string{
			"owner": file.Owner,
			"repo":  file.Repo,
			"path":  file.Path,
		},
	})
	if err != nil {
		return "", err
	}

	sha := resp.JSON().Get("sha").String()
	if sha == "" {
		// Directories come back as arrays and carry no single SHA.
		return "", core.NewNotFoundError(file.String(), "blob SHA not found for path")
	}
	return sha, nil
}
