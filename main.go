package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	qrcode "github.com/skip2/go-qrcode"

	"lan-share-server/httpserver"
	"lan-share-server/nfs"
	"lan-share-server/tftp"
)

func main() {
	root := flag.String("root", ".", "directory to share")
	port := flag.Int("port", 8080, "HTTP port (0 picks a free port)")
	local := flag.Bool("local", false, "bind to loopback only")
	pingMsg := flag.String("ping-message", "pong", "payload for GET /ping")
	maxConns := flag.Int("max-conns", 64, "maximum concurrently handled connections")
	qr := flag.Bool("qr", true, "print a QR code of the server URL")
	tftpAddr := flag.String("tftp", "", "also export the tree read-only over TFTP on this address (e.g. :69)")
	nfsAddr := flag.String("nfs", "", "also export the tree read-only over NFS on this address (e.g. :2049)")
	flag.Parse()

	loggerHTTP := log.New(os.Stdout, "http ", log.LstdFlags)
	srv := httpserver.New(httpserver.Config{
		RootPath:       *root,
		Port:           *port,
		LocalOnly:      *local,
		PingMessage:    *pingMsg,
		MaxConnections: *maxConns,
	}, loggerHTTP)

	url, err := srv.Start()
	if err != nil {
		log.Fatalf("start http failure: %v", err)
	}

	if *tftpAddr != "" {
		loggerTFTP := log.New(os.Stdout, "tftp ", log.LstdFlags)
		if _, err := tftp.StartTFTPServer(*tftpAddr, *root, loggerTFTP); err != nil {
			log.Fatalf("start tftp failure: %v", err)
		}
	}

	if *nfsAddr != "" {
		loggerNFS := log.New(os.Stdout, "nfs ", log.LstdFlags)
		if _, err := nfs.StartNFSServer(*nfsAddr, *root, loggerNFS); err != nil {
			log.Fatalf("start nfs failure: %v", err)
		}
	}

	if *qr {
		if q, err := qrcode.New(url, qrcode.Medium); err == nil {
			fmt.Println(q.ToString(false))
		}
	}
	loggerHTTP.Printf("sharing %q at %s", *root, url)

	// Block until termination signal to keep goroutine servers alive
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Printf("received signal %s, exiting", sig)
	srv.Stop()
}
