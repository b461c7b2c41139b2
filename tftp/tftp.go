package tftp

import (
	"errors"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	tftp "github.com/pin/tftp/v3"
)

var errEscapesRoot = errors.New("path escapes the served root")

// StartTFTPServer exports root read-only over TFTP. Requested paths are
// normalized lexically and refused if they would ascend above the root;
// write requests are not handled at all.
func StartTFTPServer(addr, root string, logger *log.Logger) (*tftp.Server, error) {
	if addr == "" {
		addr = ":69"
	}
	fs := osfs.New(root)

	readHandler := func(filename string, rf io.ReaderFrom) error {
		rel, err := cleanName(filename)
		if err != nil {
			logger.Printf("refused %q: %v", filename, err)
			return err
		}
		f, err := fs.Open("/" + rel)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = rf.ReadFrom(f)
		return err
	}

	// Write handler not used.
	srv := tftp.NewServer(readHandler, nil)
	srv.SetTimeout(5 * time.Second)

	go func() {
		logger.Printf("TFTP server listening on %s, root=%q", addr, root)
		if err := srv.ListenAndServe(addr); err != nil {
			logger.Printf("TFTP server error: %v", err)
		}
	}()
	return srv, nil
}

// cleanName maps a requested TFTP filename to a root-relative slash path.
func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimLeft(name, "/")
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errEscapesRoot
	}
	return cleaned, nil
}
