// Package main demonstrates running quic-go's QUIC transport entirely
// over the socket engine: the engine owns the UDP socket and its async
// recv/send queues, and packetConnAdapter bridges that queue to the
// net.PacketConn quic-go expects.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreio/sockengine/internal/ioengine"
	"github.com/coreio/sockengine/internal/taskpool"
	"github.com/quic-go/quic-go"
)

func main() {
	var (
		mode = flag.String("mode", "server", "server|client")
		addr = flag.String("addr", "127.0.0.1:9901", "address to bind or dial")
	)

	flag.Parse()

	if err := ioengine.CheckCapability(); err != nil {
		log.Fatalf("sockengine-quicdemo: %v", err)
	}

	pool := taskpool.New(4, 1024)
	defer pool.Close()

	mgr, err := ioengine.NewManager(pool, log.Default())
	if err != nil {
		log.Fatalf("sockengine-quicdemo: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sock, err := mgr.Create(ioengine.TypeUDP)
	if err != nil {
		log.Fatalf("sockengine-quicdemo: create: %v", err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		log.Fatalf("sockengine-quicdemo: resolve: %v", err)
	}

	if *mode == "server" {
		if err := mgr.Bind(sock, udpAddr); err != nil {
			log.Fatalf("sockengine-quicdemo: bind: %v", err)
		}
	} else {
		if err := mgr.Bind(sock, &net.UDPAddr{IP: net.IPv4zero, Port: 0}); err != nil {
			log.Fatalf("sockengine-quicdemo: bind: %v", err)
		}
	}

	pconn := newPacketConnAdapter(mgr, sock)
	tr := &quic.Transport{Conn: pconn}

	defer func() {
		_ = tr.Close()
		_ = mgr.Shutdown(context.Background())
	}()

	switch *mode {
	case "server":
		runServer(ctx, tr)
	case "client":
		runClient(ctx, tr, udpAddr)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func runServer(ctx context.Context, tr *quic.Transport) {
	tlsConf, err := generateSelfSignedTLS([]string{"localhost", "127.0.0.1"}, time.Hour)
	if err != nil {
		log.Fatalf("sockengine-quicdemo: tls: %v", err)
	}

	ln, err := tr.Listen(tlsConf, &quic.Config{})
	if err != nil {
		log.Fatalf("sockengine-quicdemo: listen: %v", err)
	}

	log.Printf("sockengine-quicdemo: quic server ready")

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			log.Printf("sockengine-quicdemo: accept: %v", err)

			continue
		}

		go serveQUICConn(ctx, conn)
	}
}

func serveQUICConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}

		go func() {
			buf := make([]byte, 4096)

			for {
				n, err := stream.Read(buf)
				if n > 0 {
					if _, werr := stream.Write(buf[:n]); werr != nil {
						return
					}
				}

				if err != nil {
					return
				}
			}
		}()
	}
}

func runClient(ctx context.Context, tr *quic.Transport, remote *net.UDPAddr) {
	tlsConf := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"sockengine-quicdemo"}}

	conn, err := tr.Dial(ctx, remote, tlsConf, &quic.Config{})
	if err != nil {
		log.Fatalf("sockengine-quicdemo: dial: %v", err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		log.Fatalf("sockengine-quicdemo: open stream: %v", err)
	}

	if _, err := stream.Write([]byte("hello over sockengine\n")); err != nil {
		log.Fatalf("sockengine-quicdemo: write: %v", err)
	}

	buf := make([]byte, 256)

	n, err := stream.Read(buf)
	if err != nil {
		log.Fatalf("sockengine-quicdemo: read: %v", err)
	}

	log.Printf("sockengine-quicdemo: echoed %q", buf[:n])

	_ = conn.CloseWithError(0, "done")
}
