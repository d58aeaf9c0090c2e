// Command rspd is a GDB remote serial protocol stub server for a
// simulated multi-core 32-bit target. It accepts one TCP connection at
// a time from GDB's "target remote" and dispatches packets against an
// in-memory simulated target (internal/simtarget); a real target
// would implement rsp.Target and be wired in here in simtarget's
// place.
package main

import (
	"net"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/rspd/stub/internal/simtarget"
	"github.com/rspd/stub/rsp"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	ln, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		entry.WithError(err).Fatal("rspd: listen failed")
	}
	entry.WithField("addr", ln.Addr().String()).Info("rspd: listening")

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-sigC
		entry.Info("rspd: shutting down")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			entry.WithError(err).Info("rspd: listener closed")
			return
		}
		entry.WithField("remote", conn.RemoteAddr().String()).Info("rspd: client connected")
		serveConn(conn, cfg, entry)
	}
}

func serveConn(conn net.Conn, cfg config, log *logrus.Entry) {
	defer conn.Close()

	target := simtarget.New(cfg.cores)
	transport := newConnTransport(conn)
	defer transport.Close()

	d := rsp.New(target, transport, rsp.Config{
		KillBehaviour:  cfg.killBehaviour,
		KillCoreOnExit: cfg.killOnExit,
		Timeout:        cfg.timeout,
		Log:            log,
	})

	if err := d.Serve(); err != nil {
		log.WithError(err).Warn("rspd: session ended with error")
	} else {
		log.Info("rspd: session ended")
	}
}
