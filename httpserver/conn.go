package httpserver

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"
)

// headerBufSize bounds the header block of one request.
const headerBufSize = 8 * 1024

var (
	errMalformedRequest = errors.New("malformed request line")
	errHeaderTooLarge   = errors.New("request header exceeds buffer")
)

// request is the transient per-read view of one HTTP request. Only the
// request line and the Connection header are interpreted.
type request struct {
	method    string
	rawPath   string
	keepAlive bool
}

// handleConn runs the keep-alive request loop for one accepted socket.
// Requests are processed strictly in arrival order. The loop exits on read
// timeout, EOF, socket error, the per-connection request cap, or server
// shutdown; the socket is always closed on exit.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReaderSize(conn, headerBufSize)
	writer := deadlineWriter{conn: conn, timeout: s.cfg.WriteTimeout}
	for served := 0; served < s.cfg.MaxRequestsPerConn; served++ {
		timeout := s.cfg.IdleTimeout
		if served == 0 {
			timeout = s.cfg.FirstReadTimeout
		}
		conn.SetReadDeadline(time.Now().Add(timeout))

		req, err := readRequest(reader)
		if err != nil {
			return
		}

		remaining := s.cfg.MaxRequestsPerConn - served - 1
		persistent := req.keepAlive && remaining > 0 && s.running()
		if err := s.dispatch(writer, req, persistent, remaining); err != nil {
			return
		}
		if !persistent {
			return
		}
	}
}

// readRequest parses the request line and scans the remaining header lines
// for Connection. The whole header block is bounded by headerBufSize.
// HTTP/1.1 defaults to keep-alive; an explicit Connection header overrides
// either way.
func readRequest(r *bufio.Reader) (*request, error) {
	total := 0
	line, err := readHeaderLine(r, &total)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, errMalformedRequest
	}
	proto := "HTTP/1.1"
	if len(fields) >= 3 {
		proto = fields[2]
	}
	req := &request{
		method:    fields[0],
		rawPath:   fields[1],
		keepAlive: proto == "HTTP/1.1",
	}

	for {
		line, err := readHeaderLine(r, &total)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return req, nil
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Connection") {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "close":
			req.keepAlive = false
		case "keep-alive":
			req.keepAlive = true
		}
	}
}

// readHeaderLine reads one header line without ever buffering more than the
// reader's own buffer. ReadSlice fails with ErrBufferFull once a single
// line outgrows headerBufSize, so an oversized line is refused after at
// most one buffer's worth of input; total bounds the header block as a
// whole across lines.
func readHeaderLine(r *bufio.Reader, total *int) (string, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return "", errHeaderTooLarge
		}
		return "", err
	}
	*total += len(line)
	if *total > headerBufSize {
		return "", errHeaderTooLarge
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}
