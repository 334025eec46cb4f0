package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/LordWolfenstein/databass"
	"github.com/LordWolfenstein/databass/config"
	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/db"
	log "github.com/sirupsen/logrus"
)

// Server is a TCP feed server that exposes the DataBass engine.
type Server struct {
	listener   net.Listener
	instance   *databass.Instance
	identity   core.Identity
	verifier   *Verifier
	tlsEnabled bool
	// mu serializes writes so feeds are applied one at a time.
	mu      sync.Mutex
	hub     *Hub
	hubOnce sync.Once
	stream  *streamServer
	done    chan struct{}
	wg      sync.WaitGroup
	log     *log.Entry
}

// NewServer creates a new server that acts as identity for every client.
func NewServer(instance *databass.Instance, identity core.Identity) *Server {
	return &Server{
		instance: instance,
		identity: identity,
		hub:      NewHub(),
		done:     make(chan struct{}),
		log:      instance.Logger.WithField("component", "server"),
	}
}

// NewServerWithAuth creates a server that, when auth is enabled, requires
// clients to authenticate. Each client then acts as the identity carried by
// its token.
func NewServerWithAuth(instance *databass.Instance, auth config.Auth) *Server {
	server := NewServer(instance, instance.Config.CoreIdentity())
	if auth.Enabled {
		server.verifier = NewVerifier(auth)
	}
	return server
}

func (s *Server) authRequired() bool {
	return s.verifier != nil
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.serve(listener)
}

// StartTLS begins listening for TLS connections on the specified address.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	listener, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to start TLS server: %w", err)
	}
	s.tlsEnabled = true
	return s.serve(listener)
}

func (s *Server) serve(listener net.Listener) error {
	s.listener = listener
	s.log.WithField("addr", listener.Addr().String()).Info("server listening")

	s.startHub()
	go s.acceptLoop()
	return nil
}

func (s *Server) startHub() {
	s.hubOnce.Do(func() { go s.hub.Run() })
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.stream != nil {
		s.stream.Close()
	}
	s.hub.Stop()
	s.wg.Wait()
	return nil
}

// TLSEnabled reports whether the server was started with StartTLS.
func (s *Server) TLSEnabled() bool {
	return s.tlsEnabled
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.WithError(err).Warn("accept failed")
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	logger := s.log.WithField("remote", conn.RemoteAddr().String())
	logger.Debug("client connected")

	reader := bufio.NewReader(conn)
	sess := &session{}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// One request per line
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				logger.WithError(err).Warn("read failed")
			}
			return
		}

		request := strings.TrimSpace(line)
		if request == "" {
			continue
		}

		if strings.EqualFold(request, "quit") || strings.EqualFold(request, "exit") {
			logger.Debug("client disconnected")
			return
		}

		response := s.handleLine(request, sess)

		data, err := EncodeResponse(response)
		if err != nil {
			logger.WithError(err).Error("failed to encode response")
			continue
		}

		if _, err := conn.Write(data); err != nil {
			logger.WithError(err).Warn("write failed")
			return
		}
	}
}

func (s *Server) handleLine(line string, sess *session) Response {
	if isAuthCommand(line) {
		return s.handleAuth(line, sess)
	}

	grant := Grant{Identity: s.identity}
	if s.authRequired() {
		var err error
		if grant, err = sess.current(time.Now()); err != nil {
			return Response{Success: false, Error: err.Error()}
		}
	}

	request, err := DecodeRequest([]byte(line))
	if err != nil {
		return Response{Success: false, Kind: core.ValidationKind.String(), Error: fmt.Sprintf("invalid request: %v", err)}
	}
	if grant.ReadOnly && request.writes() {
		return Response{Success: false, Error: errReadOnly.Error()}
	}

	return s.execute(context.Background(), request, s.instance.Engine(grant.Identity))
}

func (s *Server) execute(ctx context.Context, request Request, engine *db.Engine) Response {
	switch {
	case request.Feed != "":
		return s.applyFeed(ctx, request, engine)

	case request.Tables:
		tables, err := engine.ListTables(ctx)
		if err != nil {
			return errorResponse(err)
		}
		if tables == nil {
			tables = []string{}
		}
		return resultResponse("tables", tables)

	case request.Describe != "":
		schema, err := engine.Schema(ctx, request.Describe)
		if err != nil {
			return errorResponse(err)
		}
		return resultResponse("schema", schema)

	case request.Select != nil:
		result, err := engine.Select(ctx, request.Select.request())
		if err != nil {
			return errorResponse(err)
		}
		return resultResponse("query", queryResponse(result))

	default:
		s.mu.Lock()
		defer s.mu.Unlock()

		result, err := engine.Execute(ctx, request.Query)
		if err != nil {
			return errorResponse(err)
		}
		switch r := result.(type) {
		case db.QueryResult:
			return resultResponse("query", queryResponse(r))
		case db.CommitResult:
			return resultResponse("commit", commitResponse(r))
		default:
			return Response{Success: true, Type: "unknown"}
		}
	}
}

func (s *Server) applyFeed(ctx context.Context, request Request, engine *db.Engine) Response {
	policy := s.instance.Config.Policy
	if request.Policy != "" {
		policy = request.Policy
	}
	parsed, err := db.ParsePolicy(policy)
	if err != nil {
		return Response{Success: false, Kind: core.ValidationKind.String(), Error: err.Error()}
	}

	s.mu.Lock()
	report, err := engine.ApplyWire(ctx, request.Feed, parsed)
	s.mu.Unlock()
	if err != nil && report == nil {
		return errorResponse(err)
	}

	feed := FeedResponse{
		Digest:     report.Digest,
		Duplicate:  report.Duplicate,
		RolledBack: report.RolledBack,
		Seq:        report.Entry.Seq,
		Outcomes:   make([]OutcomeResponse, len(report.Outcomes)),
	}
	for i, outcome := range report.Outcomes {
		feed.Outcomes[i] = OutcomeResponse{
			Index:     outcome.Index,
			Operation: outcome.Kind.String(),
			Table:     outcome.Table,
			OK:        outcome.OK(),
		}
		if outcome.Err != nil {
			feed.Outcomes[i].Error = outcome.Err.Error()
			feed.Outcomes[i].Kind = core.KindOf(outcome.Err).String()
		}
	}

	if err != nil {
		// Applied but not journaled.
		resp := resultResponse("feed", feed)
		resp.Success = false
		resp.Error = err.Error()
		return resp
	}

	if !report.Duplicate && !report.RolledBack && len(report.Succeeded()) > 0 {
		s.hub.Broadcast(FeedEvent{Seq: report.Entry.Seq, Digest: report.Digest, Feed: request.Feed})
	}
	return resultResponse("feed", feed)
}

func queryResponse(r db.QueryResult) QueryResponse {
	return QueryResponse{
		Columns:     r.Columns,
		Data:        r.Data(),
		RecordsRead: r.RecordsRead,
		TimeMs:      r.Elapsed.Seconds() * 1000,
	}
}

func commitResponse(r db.CommitResult) CommitResponse {
	return CommitResponse{
		TablesCreated:  r.TablesCreated,
		TablesAltered:  r.TablesAltered,
		TablesDeleted:  r.TablesDeleted,
		RecordsWritten: r.RecordsWritten,
		RecordsUpdated: r.RecordsUpdated,
		RecordsDeleted: r.RecordsDeleted,
		RowsAffected:   r.RowsAffected,
		TimeMs:         r.Elapsed.Seconds() * 1000,
	}
}
