// Package main provides a CLI exercising the socket engine end to end:
// per run, either a UDP echo server (-mode udp-echo) or a TCP echo server
// that accepts connections and echoes what it reads (-mode tcp-echo),
// driven by context cancellation (ctrl-C) for shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coreio/sockengine/internal/config"
	"github.com/coreio/sockengine/internal/ioengine"
	"github.com/coreio/sockengine/internal/taskpool"
)

func main() {
	var (
		mode       = flag.String("mode", "udp-echo", "demo mode: udp-echo|tcp-echo")
		addr       = flag.String("addr", "127.0.0.1:9900", "address to bind")
		workers    = flag.Int("workers", 4, "task pool worker count")
		configPath = flag.String("config", "", "optional JSON config file")
	)

	flag.Parse()

	if err := ioengine.CheckCapability(); err != nil {
		log.Fatalf("sockengine-demo: %v", err)
	}

	cfg := config.Default()

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("sockengine-demo: %v", err)
		}

		cfg = loaded
	}

	if *workers > 0 {
		cfg.Workers = *workers
	}

	pool := taskpool.New(cfg.Workers, cfg.QueueCapacity)
	defer pool.Close()

	mgr, err := ioengine.NewManager(pool, log.Default())
	if err != nil {
		log.Fatalf("sockengine-demo: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "udp-echo":
		runUDPEcho(ctx, mgr, *addr)
	case "tcp-echo":
		runTCPEcho(ctx, mgr, *addr)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	if err := mgr.Shutdown(context.Background()); err != nil {
		log.Printf("sockengine-demo: shutdown: %v", err)
	}
}

type demoTask struct{ name string }

func runUDPEcho(ctx context.Context, mgr *ioengine.Manager, addr string) {
	s, err := mgr.Create(ioengine.TypeUDP)
	if err != nil {
		log.Fatalf("sockengine-demo: create: %v", err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Fatalf("sockengine-demo: resolve: %v", err)
	}

	if err := mgr.Bind(s, udpAddr); err != nil {
		log.Fatalf("sockengine-demo: bind: %v", err)
	}

	log.Printf("sockengine-demo: udp echo listening on %s", addr)

	task := &demoTask{name: "udp-echo"}

	var queueNext func()

	queueNext = func() {
		buf := ioengine.NewBuffer(make([]byte, 2048))

		err := s.Recv(task, buf, 0, false, func(ev *ioengine.Event) {
			if ev.Result == ioengine.Success {
				echoBack(mgr, s, task, buf, ev.Addr)
			}

			select {
			case <-ctx.Done():
			default:
				queueNext()
			}
		}, nil)
		if err != nil {
			log.Printf("sockengine-demo: recv: %v", err)
		}
	}

	queueNext()

	<-ctx.Done()
	_ = mgr.Close(s)
}

func echoBack(mgr *ioengine.Manager, s *ioengine.Socket, task *demoTask, buf *ioengine.Buffer, to *ioengine.SockAddr) {
	err := s.SendTo(task, buf, to, false, func(ev *ioengine.Event) {
		if ev.Result != ioengine.Success {
			log.Printf("sockengine-demo: send: %s", ev.Result)
		}
	}, nil)
	if err != nil {
		log.Printf("sockengine-demo: queue send: %v", err)
	}
}

func runTCPEcho(ctx context.Context, mgr *ioengine.Manager, addr string) {
	listener, err := mgr.Create(ioengine.TypeTCP)
	if err != nil {
		log.Fatalf("sockengine-demo: create: %v", err)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		log.Fatalf("sockengine-demo: resolve: %v", err)
	}

	if err := mgr.Bind(listener, tcpAddr); err != nil {
		log.Fatalf("sockengine-demo: bind: %v", err)
	}

	if err := mgr.Listen(listener, 128); err != nil {
		log.Fatalf("sockengine-demo: listen: %v", err)
	}

	log.Printf("sockengine-demo: tcp echo listening on %s", addr)

	task := &demoTask{name: "tcp-echo"}

	var queueAccept func()

	queueAccept = func() {
		err := listener.Accept(task, false, func(ev *ioengine.Event) {
			if ev.Result == ioengine.Success {
				go serveConn(mgr, task, ev.NewSocket)
			}

			select {
			case <-ctx.Done():
			default:
				queueAccept()
			}
		}, nil)
		if err != nil {
			log.Printf("sockengine-demo: accept: %v", err)
		}
	}

	queueAccept()

	<-ctx.Done()
	_ = mgr.Close(listener)
}

func serveConn(mgr *ioengine.Manager, task *demoTask, conn *ioengine.Socket) {
	var wg sync.WaitGroup

	wg.Add(1)

	var readLoop func()

	readLoop = func() {
		buf := ioengine.NewBuffer(make([]byte, 4096))

		err := conn.Recv(task, buf, 1, false, func(ev *ioengine.Event) {
			switch ev.Result {
			case ioengine.Success:
				err := conn.Send(task, buf, false, func(ev *ioengine.Event) {
					if ev.Result == ioengine.Success {
						readLoop()
					} else {
						wg.Done()
					}
				}, nil)
				if err != nil {
					wg.Done()
				}
			default:
				wg.Done()
			}
		}, nil)
		if err != nil {
			wg.Done()
		}
	}

	readLoop()
	wg.Wait()
	_ = mgr.Close(conn)
}
