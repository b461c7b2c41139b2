package httpserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

// countingReader tracks how many bytes readRequest pulled off the wire.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestReadRequestParsesConnectionHeader(t *testing.T) {
	cases := []struct {
		raw       string
		method    string
		rawPath   string
		keepAlive bool
	}{
		{"GET /a.txt HTTP/1.1\r\n\r\n", "GET", "/a.txt", true},
		{"GET /a.txt HTTP/1.0\r\n\r\n", "GET", "/a.txt", false},
		{"GET / HTTP/1.1\r\nConnection: close\r\n\r\n", "GET", "/", false},
		{"GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n", "GET", "/", true},
		{"HEAD /x HTTP/1.1\r\nHost: h\r\nAccept: */*\r\n\r\n", "HEAD", "/x", true},
	}
	for _, c := range cases {
		req, err := readRequest(bufio.NewReaderSize(strings.NewReader(c.raw), headerBufSize))
		if err != nil {
			t.Fatalf("readRequest(%q): %v", c.raw, err)
		}
		if req.method != c.method || req.rawPath != c.rawPath || req.keepAlive != c.keepAlive {
			t.Fatalf("readRequest(%q) got=%+v", c.raw, req)
		}
	}
}

func TestReadRequestRejectsOversizedRequestLine(t *testing.T) {
	// A request line far beyond the header buffer, never newline-terminated.
	// The refusal must come after at most one buffer's worth of input, not
	// after the whole line has been swallowed.
	raw := "GET /" + strings.Repeat("a", 10<<20) + " HTTP/1.1\r\n\r\n"
	cr := &countingReader{r: strings.NewReader(raw)}
	_, err := readRequest(bufio.NewReaderSize(cr, headerBufSize))
	if !errors.Is(err, errHeaderTooLarge) {
		t.Fatalf("expected errHeaderTooLarge, got %v", err)
	}
	if cr.n > headerBufSize {
		t.Fatalf("consumed %d bytes before rejection, bound is %d", cr.n, headerBufSize)
	}
}

func TestReadRequestRejectsOversizedHeaderBlock(t *testing.T) {
	// Many small lines whose sum exceeds the bound.
	var b strings.Builder
	b.WriteString("GET /x HTTP/1.1\r\n")
	for i := 0; b.Len() <= headerBufSize; i++ {
		fmt.Fprintf(&b, "X-Pad-%d: %s\r\n", i, strings.Repeat("y", 100))
	}
	b.WriteString("\r\n")
	_, err := readRequest(bufio.NewReaderSize(strings.NewReader(b.String()), headerBufSize))
	if !errors.Is(err, errHeaderTooLarge) {
		t.Fatalf("expected errHeaderTooLarge, got %v", err)
	}
}

func TestReadRequestRejectsMalformedRequestLine(t *testing.T) {
	for _, raw := range []string{"\r\n\r\n", "GET\r\n\r\n"} {
		if _, err := readRequest(bufio.NewReaderSize(strings.NewReader(raw), headerBufSize)); !errors.Is(err, errMalformedRequest) {
			t.Fatalf("readRequest(%q) expected errMalformedRequest, got %v", raw, err)
		}
	}
}
