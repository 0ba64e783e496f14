/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package control listens for OSC packets over UDP and feeds them to the
// dispatcher. One receive loop handles everything: packets are decoded and
// dispatched strictly in arrival order, which is what serializes remote
// commands against each other.
package control

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/telemetry"
)

// Handler consumes decoded control messages.
type Handler interface {
	Handle(ctx context.Context, address string, args []any) error
}

// Server owns the UDP control socket.
type Server struct {
	bind    string
	port    int
	handler Handler
	logger  zerolog.Logger

	conn   net.PacketConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a control server bound to bind:port.
func NewServer(bind string, port int, handler Handler, logger zerolog.Logger) *Server {
	return &Server{
		bind:    bind,
		port:    port,
		handler: handler,
		logger:  logger.With().Str("component", "control").Logger(),
	}
}

// Start opens the socket and launches the receive loop.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.bind, strconv.Itoa(s.port))
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}
	s.conn = conn

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info().Str("addr", conn.LocalAddr().String()).Msg("control socket listening")

	s.wg.Add(1)
	go s.receiveLoop(loopCtx)

	return nil
}

// Stop shuts the receive loop down and closes the socket.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	s.logger.Info().Msg("control socket stopped")
	return nil
}

// Addr returns the bound address, useful when the port was 0.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Server) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	// The read deadline keeps the loop responsive to context cancellation.
	oscServer := &osc.Server{ReadTimeout: 1 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		packet, err := oscServer.ReceivePacket(s.conn)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			telemetry.OSCPacketsTotal.WithLabelValues("error").Inc()
			s.logger.Error().Err(err).Msg("control socket read error")
			continue
		}
		if packet == nil {
			continue
		}

		s.handlePacket(ctx, packet)
	}
}

// handlePacket dispatches synchronously. Handler errors are already logged
// downstream; control is fire-and-forget so there is nobody to answer to.
func (s *Server) handlePacket(ctx context.Context, packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		telemetry.OSCPacketsTotal.WithLabelValues("message").Inc()
		_ = s.handler.Handle(ctx, p.Address, p.Arguments)
	case *osc.Bundle:
		// Bundles are flattened in order. Timetags are ignored: commands
		// run on arrival.
		telemetry.OSCPacketsTotal.WithLabelValues("bundle").Inc()
		for _, msg := range p.Messages {
			_ = s.handler.Handle(ctx, msg.Address, msg.Arguments)
		}
		for _, nested := range p.Bundles {
			s.handlePacket(ctx, nested)
		}
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
