// Package stationsim simulates the GIOM 3000 weather station menu interface
// for local development: menu on connect, one selection, one answer, close.
package stationsim

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const menu = "\r\nGIOM 3000 Weather Station\r\n" +
	" 1 - Weather information\r\n" +
	" 2 - Exit\r\n" +
	"Select: "

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithReadTimeout bounds how long the station waits for a selection.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

type Server struct {
	gen         *DataGenerator
	log         zerolog.Logger
	readTimeout time.Duration

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

func NewServer(gen *DataGenerator, opts ...Option) *Server {
	s := &Server{
		gen:         gen,
		log:         log.Logger.With().Str("component", "stationsim").Logger(),
		readTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close. It returns nil after Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("station simulator listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	l := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()

	if _, err := io.WriteString(conn, menu); err != nil {
		l.Warn().Err(err).Msg("write menu")
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		l.Debug().Err(err).Msg("no selection received")
		return
	}

	var answer []byte
	switch sel := strings.TrimSpace(line); sel {
	case "1":
		answer = Format(s.gen.Next())
	case "2":
		answer = []byte("\r\nBye\r\n")
	default:
		answer = []byte("\r\nUnknown option: " + sel + "\r\n")
	}
	if _, err := conn.Write(answer); err != nil {
		l.Warn().Err(err).Msg("write answer")
		return
	}
	l.Debug().Str("selection", strings.TrimSpace(line)).Int("bytes", len(answer)).Msg("served")
}
