package httpserver

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
)

var notFoundBody = []byte("<html><body><h1>404 Not Found</h1></body></html>")

type pingResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// dispatch routes one parsed request and writes the response. The returned
// error is non-nil only when the connection itself is unusable; routing
// failures become 404s or JSON error envelopes and never propagate.
// remaining is the number of requests the connection may still serve after
// this one; it is echoed in the Keep-Alive header.
func (s *Server) dispatch(w io.Writer, req *request, keep bool, remaining int) error {
	if req.method == "OPTIONS" {
		return s.writeResponse(w, 204, "text/plain", nil, nil, keep, remaining, false)
	}
	head := req.method == "HEAD"

	decoded, err := decodePath(req.rawPath)
	if err != nil {
		return s.send404(w, keep, remaining, head)
	}

	switch {
	case decoded == "/ping" || decoded == "/ping/":
		body := marshalOr(pingResponse{Status: true, Message: s.cfg.PingMessage}, serializeErrJSON)
		return s.sendJSON(w, body, keep, remaining, head)

	case decoded == "/api/files" || decoded == "/api/files/":
		return s.sendJSON(w, buildRecursiveListing(s.fs, s.root, s.URL()), keep, remaining, head)

	case decoded == "/api/dir" || decoded == "/api/dir/":
		return s.sendJSON(w, buildDirectoryListing(s.fs, "", "/", s.URL()), keep, remaining, head)

	case strings.HasPrefix(decoded, "/api/dir/"):
		sub := decoded[len("/api/dir/"):]
		rel, err := resolveRelative(sub)
		if err != nil {
			return s.sendJSON(w, marshalOr(errResponse{Error: "Invalid path"}, serializeErrJSON), keep, remaining, head)
		}
		return s.sendJSON(w, buildDirectoryListing(s.fs, rel, sub, s.URL()), keep, remaining, head)

	case strings.HasPrefix(decoded, "/download/"):
		rel, err := resolveRelative(decoded[len("/download/"):])
		if err != nil || rel == "" {
			return s.send404(w, keep, remaining, head)
		}
		fi, err := s.fs.Stat(billyPath(rel))
		if err != nil || fi.IsDir() {
			return s.send404(w, keep, remaining, head)
		}
		return s.serveFile(w, rel, fi, keep, remaining, head, true)

	default:
		return s.serveStatic(w, decoded, keep, remaining, head)
	}
}

// serveStatic resolves a plain GET path: a directory serves its index.html
// when present and the HTML listing otherwise; a file is streamed.
func (s *Server) serveStatic(w io.Writer, decoded string, keep bool, remaining int, head bool) error {
	rel, err := resolveRelative(decoded)
	if err != nil {
		return s.send404(w, keep, remaining, head)
	}
	fi, err := s.fs.Stat(billyPath(rel))
	if err != nil {
		return s.send404(w, keep, remaining, head)
	}
	if !fi.IsDir() {
		return s.serveFile(w, rel, fi, keep, remaining, head, false)
	}

	indexRel := path.Join(rel, "index.html")
	if ifi, err := s.fs.Stat(billyPath(indexRel)); err == nil && !ifi.IsDir() {
		return s.serveFile(w, indexRel, ifi, keep, remaining, head, false)
	}
	return s.writeResponse(w, 200, "text/html; charset=utf-8", buildHTMLIndex(s.fs, rel, decoded), nil, keep, remaining, head)
}

// serveFile streams one regular file. Zero-length files map to 404; this
// mirrors the long-standing behavior clients already rely on.
func (s *Server) serveFile(w io.Writer, rel string, fi os.FileInfo, keep bool, remaining int, head, attachment bool) error {
	if fi.Size() == 0 {
		return s.send404(w, keep, remaining, head)
	}
	extra := map[string]string{}
	if fi.Size() >= acceptRangesMin {
		// Advertised capability only; range requests are not implemented.
		extra["Accept-Ranges"] = "bytes"
	}
	if attachment {
		extra["Content-Disposition"] = dispositionFor(fi.Name())
	}
	f, err := s.fs.Open(billyPath(rel))
	if err != nil {
		return s.send404(w, keep, remaining, head)
	}
	defer f.Close()
	header := s.buildHeaders(200, MimeType(fi.Name()), fi.Size(), extra, keep, remaining)
	return streamFile(w, f, fi.Size(), s.cfg.ChunkSize, header, head)
}

func (s *Server) sendJSON(w io.Writer, body []byte, keep bool, remaining int, head bool) error {
	return s.writeResponse(w, 200, "application/json; charset=utf-8", body, nil, keep, remaining, head)
}

func (s *Server) send404(w io.Writer, keep bool, remaining int, head bool) error {
	return s.writeResponse(w, 404, "text/html; charset=utf-8", notFoundBody, nil, keep, remaining, head)
}

// writeResponse sends a fully buffered response.
func (s *Server) writeResponse(w io.Writer, status int, contentType string, body []byte, extra map[string]string, keep bool, remaining int, head bool) error {
	header := s.buildHeaders(status, contentType, int64(len(body)), extra, keep, remaining)
	if err := writeFull(w, header); err != nil {
		return err
	}
	if head || len(body) == 0 {
		return nil
	}
	return writeFull(w, body)
}

// buildHeaders renders the status line and header block. Every response
// carries the CORS headers and Cache-Control: no-cache; persistent
// responses add the Keep-Alive parameters, with max counting down the
// requests still allowed on the connection.
func (s *Server) buildHeaders(status int, contentType string, contentLength int64, extra map[string]string, keep bool, remaining int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, statusText(status))
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", contentLength)
	if keep {
		b.WriteString("Connection: keep-alive\r\n")
		fmt.Fprintf(&b, "Keep-Alive: timeout=%d, max=%d\r\n", int(s.cfg.IdleTimeout.Seconds()), remaining)
	} else {
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("Access-Control-Allow-Origin: *\r\n")
	b.WriteString("Access-Control-Allow-Methods: GET, HEAD, OPTIONS\r\n")
	b.WriteString("Access-Control-Allow-Headers: *\r\n")
	b.WriteString("Cache-Control: no-cache\r\n")
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, extra[k])
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// dispositionFor builds the attachment header with both the plain and the
// RFC 5987 encoded filename forms.
func dispositionFor(name string) string {
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", name, url.PathEscape(name))
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "OK"
	}
}
