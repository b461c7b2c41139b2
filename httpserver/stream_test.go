package httpserver

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

// shortWriter accepts at most chunk bytes per call; writeFull must keep
// draining until the buffer is gone.
type shortWriter struct {
	buf   bytes.Buffer
	chunk int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.chunk {
		p = p[:w.chunk]
	}
	return w.buf.Write(p)
}

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// flakyWriter fails with a transient timeout a few times before accepting
// any bytes.
type flakyWriter struct {
	buf   bytes.Buffer
	fails int
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fails > 0 {
		w.fails--
		return 0, timeoutError{}
	}
	return w.buf.Write(p)
}

type hardErrWriter struct{}

func (hardErrWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

// deadlineConn records the write deadlines armed on it.
type deadlineConn struct {
	net.Conn
	buf       bytes.Buffer
	deadlines []time.Time
}

func (c *deadlineConn) Write(p []byte) (int, error) { return c.buf.Write(p) }

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func TestDeadlineWriterArmsEveryWrite(t *testing.T) {
	c := &deadlineConn{}
	w := deadlineWriter{conn: c, timeout: time.Minute}

	before := time.Now()
	for _, chunk := range []string{"one", "two", "three"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("write %q: %v", chunk, err)
		}
	}
	if c.buf.String() != "onetwothree" {
		t.Fatalf("payload wrong: %q", c.buf.String())
	}
	if len(c.deadlines) != 3 {
		t.Fatalf("expected one deadline per write, got %d", len(c.deadlines))
	}
	for i, d := range c.deadlines {
		if d.Before(before.Add(time.Minute)) {
			t.Fatalf("deadline %d not pushed out by the timeout: %v", i, d)
		}
	}
}

func TestWriteFullDrainsPartialWrites(t *testing.T) {
	w := &shortWriter{chunk: 3}
	payload := []byte("hello, partial world")
	if err := writeFull(w, payload); err != nil {
		t.Fatalf("writeFull: %v", err)
	}
	if !bytes.Equal(w.buf.Bytes(), payload) {
		t.Fatalf("drained bytes wrong: %q", w.buf.Bytes())
	}
}

func TestWriteFullRetriesTransientErrors(t *testing.T) {
	w := &flakyWriter{fails: 5}
	if err := writeFull(w, []byte("retry me")); err != nil {
		t.Fatalf("writeFull should retry transient errors: %v", err)
	}
	if w.buf.String() != "retry me" {
		t.Fatalf("payload wrong: %q", w.buf.String())
	}
}

func TestWriteFullGivesUpAfterRetryBudget(t *testing.T) {
	w := &flakyWriter{fails: writeRetryMax + 10}
	err := writeFull(w, []byte("never lands"))
	if err == nil {
		t.Fatalf("expected error once the retry budget is spent")
	}
	var ne timeoutError
	if !errors.As(err, &ne) {
		t.Fatalf("unexpected error type: %v", err)
	}
}

func TestWriteFullAbortsOnHardError(t *testing.T) {
	err := writeFull(hardErrWriter{}, []byte("x"))
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("hard error should abort immediately, got %v", err)
	}
}

func TestStreamFile(t *testing.T) {
	fs := memfs.New()
	payload := bytes.Repeat([]byte{7}, 10000)
	if err := util.WriteFile(fs, "/big.bin", payload, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := fs.Open("/big.bin")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out bytes.Buffer
	header := []byte("HTTP/1.1 200 OK\r\n\r\n")
	if err := streamFile(&out, f, int64(len(payload)), 1024, header, false); err != nil {
		t.Fatalf("streamFile: %v", err)
	}
	want := append(append([]byte{}, header...), payload...)
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("streamed output wrong: got %d bytes want %d", out.Len(), len(want))
	}
}

func TestStreamFileHeadSuppressesBody(t *testing.T) {
	fs := memfs.New()
	if err := util.WriteFile(fs, "/f.bin", []byte("body"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := fs.Open("/f.bin")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out bytes.Buffer
	header := []byte("HDR\r\n\r\n")
	if err := streamFile(&out, f, 4, 1024, header, true); err != nil {
		t.Fatalf("streamFile: %v", err)
	}
	if !bytes.Equal(out.Bytes(), header) {
		t.Fatalf("HEAD should send headers only: %q", out.Bytes())
	}
}
