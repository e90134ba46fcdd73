// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gvcp

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"time"

	"golang.org/x/xerrors"
)

const (
	recvTimeout = 500 * time.Millisecond

	// consecutive send/receive failures before the socket is
	// recreated, and the minimum spacing between recreations.
	sendErrThreshold = 5
	rebindCooldown   = 15 * time.Second
)

// Server runs the GVCP control loop: it receives command datagrams,
// lets the processor answer them and services periodic discovery
// broadcasts between packets.
type Server struct {
	proc   *Processor
	disc   *Discovery
	listen func() (net.PacketConn, error)
	msg    *log.Logger

	conn       net.PacketConn
	errs       int
	lastRebind time.Time
}

// SrvOption configures a Server.
type SrvOption func(*Server)

// WithListen replaces how the server (re)creates its socket.
func WithListen(listen func() (net.PacketConn, error)) SrvOption {
	return func(srv *Server) { srv.listen = listen }
}

// WithSrvLogger sets the server log output.
func WithSrvLogger(msg *log.Logger) SrvOption {
	return func(srv *Server) { srv.msg = msg }
}

// NewServer binds the control socket on addr and returns a server
// ready to run.
func NewServer(addr string, proc *Processor, disc *Discovery, opts ...SrvOption) (*Server, error) {
	srv := &Server{
		proc: proc,
		disc: disc,
		msg:  log.New(os.Stdout, "gvcp: ", 0),
	}
	srv.listen = func() (net.PacketConn, error) {
		return net.ListenPacket("udp", addr)
	}
	for _, opt := range opts {
		opt(srv)
	}

	conn, err := srv.listen()
	if err != nil {
		return nil, xerrors.Errorf("gvcp: could not listen on %q: %w", addr, err)
	}
	srv.conn = conn
	srv.proc.Stats().SetConnBit(ConnGVCPSocket, true)
	return srv, nil
}

// Addr returns the bound control address.
func (srv *Server) Addr() net.Addr { return srv.conn.LocalAddr() }

// Run serves control packets until the context is cancelled.
func (srv *Server) Run(ctx context.Context) error {
	defer srv.conn.Close()
	defer srv.proc.Stats().SetConnBit(ConnGVCPSocket, false)

	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = srv.conn.SetReadDeadline(time.Now().Add(recvTimeout))
		n, src, err := srv.conn.ReadFrom(buf)
		switch {
		case err == nil:
			srv.handle(src, buf[:n])
		case isTimeout(err):
			// idle: service the periodic broadcast.
		case errors.Is(err, net.ErrClosed):
			return nil
		default:
			srv.msg.Printf("recv error: %v", err)
			srv.fail()
		}

		srv.disc.Poll(time.Now(), srv.conn)
	}
}

func (srv *Server) handle(src net.Addr, pkt []byte) {
	udp, _ := src.(*net.UDPAddr)
	resp := srv.proc.Process(udp, pkt)
	if resp == nil {
		return
	}
	if _, err := srv.conn.WriteTo(resp, src); err != nil {
		srv.msg.Printf("could not send response to %v: %v", src, err)
		srv.fail()
		return
	}
	srv.errs = 0
}

// fail records a socket failure and recreates the socket once the
// failure threshold is reached, rate-limited by the rebind cool-down.
func (srv *Server) fail() {
	srv.errs++
	if srv.errs < sendErrThreshold {
		return
	}
	if !srv.lastRebind.IsZero() && time.Since(srv.lastRebind) < rebindCooldown {
		return
	}

	srv.msg.Printf("recreating control socket after %d failures", srv.errs)
	srv.proc.Stats().SetConnBit(ConnGVCPSocket, false)
	srv.conn.Close()

	conn, err := srv.listen()
	srv.lastRebind = time.Now()
	if err != nil {
		srv.msg.Printf("could not recreate control socket: %v", err)
		return
	}
	srv.conn = conn
	srv.errs = 0
	srv.proc.Stats().SetConnBit(ConnGVCPSocket, true)
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
