package httpserver

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidPath marks a request path that is malformed or would resolve
// outside the served root. It maps to 404 for file routes and to the
// {"success":false,"error":"Invalid path"} envelope for the directory API.
var ErrInvalidPath = errors.New("invalid path")

// decodePath strips the query string from a raw request target and
// percent-decodes the rest. Pure: no filesystem access.
func decodePath(raw string) (string, error) {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	p, err := url.PathUnescape(raw)
	if err != nil {
		return "", ErrInvalidPath
	}
	if p == "" {
		p = "/"
	}
	return p, nil
}

// resolveRelative lexically normalizes a decoded path into a root-relative
// slash path; "" names the root itself. Any path that would ascend above
// the root is rejected. Pure: no filesystem access, so traversal attempts
// are refused before anything touches the disk.
func resolveRelative(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", nil
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// billyPath maps a root-relative path to the absolute form the chrooted
// filesystem expects.
func billyPath(rel string) string {
	return "/" + rel
}
