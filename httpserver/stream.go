package httpserver

import (
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// writeRetryMax bounds the transient-error retries for one response.
	writeRetryMax = 40
	// writeBackoffCap caps the per-retry backoff.
	writeBackoffCap = 10 * time.Millisecond
	// acceptRangesMin is the file size above which Accept-Ranges: bytes is
	// advertised. Declared capability only; range requests are not served.
	acceptRangesMin = 1 << 20
)

// writeFull writes buf completely. Partial writes advance the buffer;
// transient errors (EAGAIN/EWOULDBLOCK, write timeouts) are retried with a
// doubling backoff capped at writeBackoffCap for at most writeRetryMax
// attempts. Hard errors (broken pipe, reset) abort immediately and the
// caller closes the connection.
func writeFull(w io.Writer, buf []byte) error {
	backoff := time.Millisecond
	retries := 0
	for len(buf) > 0 {
		n, err := w.Write(buf)
		buf = buf[n:]
		if err == nil {
			continue
		}
		if !transientWriteError(err) || retries >= writeRetryMax {
			return err
		}
		retries++
		time.Sleep(backoff)
		backoff *= 2
		if backoff > writeBackoffCap {
			backoff = writeBackoffCap
		}
	}
	return nil
}

// deadlineWriter arms a fresh write deadline before every write. Without
// it a peer that stops reading blocks the worker in conn.Write for good;
// with it the stall surfaces as a timeout and runs through the writeFull
// retry budget before the response is abandoned.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (d deadlineWriter) Write(p []byte) (int, error) {
	d.conn.SetWriteDeadline(time.Now().Add(d.timeout))
	return d.conn.Write(p)
}

func transientWriteError(err error) bool {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// streamFile writes a pre-built header block and then the file body in
// fixed-size chunks. Content-Length in the header is the size at open
// time; the file is not re-checked mid-stream, so the copy stops after
// size bytes even if the file grows. Each chunk is fully drained before
// the next read. head suppresses the body.
func streamFile(w io.Writer, f io.Reader, size int64, chunkSize int, header []byte, head bool) error {
	if err := writeFull(w, header); err != nil {
		return err
	}
	if head {
		return nil
	}
	buf := make([]byte, chunkSize)
	var sent int64
	for sent < size {
		want := int64(len(buf))
		if remaining := size - sent; remaining < want {
			want = remaining
		}
		n, err := f.Read(buf[:want])
		if n > 0 {
			if werr := writeFull(w, buf[:n]); werr != nil {
				return werr
			}
			sent += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
