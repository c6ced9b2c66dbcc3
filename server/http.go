package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"PastureDB/dberror"
	"PastureDB/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

/*
HTTP adapter of the connection front

	GET    /health
	POST   /api/v1/connections                    open a connection
	POST   /api/v1/connections/{id}/requests      one Message in, its reply out
	DELETE /api/v1/connections/{id}
	GET    /api/v1/tablespaces                    status of every table space
	POST   /api/v1/tablespaces                    {"name": ...}
	DELETE /api/v1/tablespaces/{name}
	POST   /api/v1/tablespaces/{name}/checkpoint

A connection opened over HTTP gets an httpChannel: each request waits on its own reply slot,
keyed by request id, so concurrent requests on one connection never see each other's reply.
*/

const (
	maxRequestBody  = 8 << 20
	shutdownTimeout = 10 * time.Second
)

type httpChannel struct {
	remote string

	mu      sync.Mutex
	waiters map[string]chan *Message
	closed  bool
}

func newHTTPChannel(remote string) *httpChannel {
	return &httpChannel{remote: remote, waiters: make(map[string]chan *Message)}
}

func (ch *httpChannel) RemoteAddress() string { return ch.remote }

func (ch *httpChannel) await(requestID string) (<-chan *Message, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil, fmt.Errorf("channel closed")
	}
	if _, busy := ch.waiters[requestID]; busy {
		return nil, fmt.Errorf("request %s already in flight", requestID)
	}
	w := make(chan *Message, 1)
	ch.waiters[requestID] = w
	return w, nil
}

func (ch *httpChannel) forget(requestID string) {
	ch.mu.Lock()
	delete(ch.waiters, requestID)
	ch.mu.Unlock()
}

func (ch *httpChannel) SendReply(reply *Message) error {
	ch.mu.Lock()
	w, ok := ch.waiters[reply.ReplyTo]
	delete(ch.waiters, reply.ReplyTo)
	ch.mu.Unlock()
	if !ok {
		return fmt.Errorf("no request waiting for reply to %q", reply.ReplyTo)
	}
	w <- reply
	return nil
}

func (ch *httpChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closed = true
	clear(ch.waiters)
	return nil
}

// Handler returns the chi router of the HTTP front
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/connections", s.handleOpenConnection)
		r.Route("/connections/{id}", func(r chi.Router) {
			r.Post("/requests", s.handleRequest)
			r.Delete("/", s.handleCloseConnection)
		})
		r.Get("/tablespaces", s.handleListTableSpaces)
		r.Post("/tablespaces", s.handleCreateTableSpace)
		r.Route("/tablespaces/{name}", func(r chi.Router) {
			r.Delete("/", s.handleDropTableSpace)
			r.Post("/checkpoint", s.handleCheckpoint)
		})
	})
	return r
}

// ListenAndServe serves the HTTP front until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := logging.WithComponent("http")

	errCh := make(chan error, 1)
	go func() {
		if s.cfg.TLSEnabled {
			log.Info("listening", "address", s.cfg.Address(), "tls", true)
			errCh <- s.httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
			return
		}
		log.Info("listening", "address", s.cfg.Address(), "tls", false)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"node":        s.manager.Config().NodeID,
		"connections": s.ConnectionCount(),
	})
}

func (s *Server) handleOpenConnection(w http.ResponseWriter, r *http.Request) {
	conn := s.CreateConnection(newHTTPChannel(r.RemoteAddr))
	writeJSON(w, http.StatusCreated, map[string]string{"id": conn.ID()})
}

func (s *Server) handleCloseConnection(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.Connection(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown connection"})
		return
	}
	conn.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.Connection(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown connection"})
		return
	}
	ch, ok := conn.channel.(*httpChannel)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "connection is not served over http"})
		return
	}

	var request Message
	if err := JSON.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request: " + err.Error()})
		return
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	replies, err := ch.await(request.ID)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	defer ch.forget(request.ID)

	if err := conn.RequestReceived(r.Context(), &request); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	reply := <-replies
	writeJSON(w, replyStatus(reply), reply)
}

func (s *Server) handleListTableSpaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleCreateTableSpace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := JSON.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request: " + err.Error()})
		return
	}
	def, err := s.manager.CreateTableSpace(body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": def.Name(), "uuid": def.UUID(), "leader": def.Leader()})
}

func (s *Server) handleDropTableSpace(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DropTableSpace(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	lsn, err := s.manager.Checkpoint(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"lsn": lsn})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := JSON.NewEncoder(w).Encode(v); err != nil {
		logging.WithComponent("http").Warn("cannot write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorReply("", err))
}

func replyStatus(reply *Message) int {
	if reply.Type != TypeError {
		return http.StatusOK
	}
	return codeStatus(dberror.CodeFromString(reply.Code))
}

func statusOf(err error) int {
	return codeStatus(dberror.CodeOf(err))
}

func codeStatus(code error) int {
	switch code {
	case nil:
		return http.StatusInternalServerError
	case dberror.ErrTableSpaceNotFound:
		return http.StatusNotFound
	case dberror.ErrTableSpaceExists, dberror.ErrDuplicatePrimaryKey:
		return http.StatusConflict
	case dberror.ErrTableSpaceUnavailable:
		return http.StatusServiceUnavailable
	}
	switch dberror.KindOfCode(code) {
	case dberror.KindValidation, dberror.KindDefinition:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.WithComponent("http").Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
