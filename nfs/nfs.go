package nfs

import (
	"log"
	"net"

	"github.com/go-git/go-billy/v5/osfs"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// handleCacheSize bounds the NFS file-handle cache.
const handleCacheSize = 1024

// StartNFSServer exports root read-only over NFS. It returns the listener
// so the caller can close it to stop serving.
func StartNFSServer(addr, root string, logger *log.Logger) (net.Listener, error) {
	if addr == "" {
		addr = ":2049"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	handler := nfshelper.NewNullAuthHandler(nfshelper.NewROFS(osfs.New(root)))
	cached := nfshelper.NewCachingHandler(handler, handleCacheSize)

	go func() {
		logger.Printf("NFS server listening on %s, root=%q", addr, root)
		if err := nfs.Serve(ln, cached); err != nil {
			logger.Printf("NFS server error: %v", err)
		}
	}()
	return ln, nil
}
