package server

import (
	"context"
	"errors"

	"PastureDB/config"
	"PastureDB/dberror"
	"PastureDB/logging"
	"PastureDB/plan"
	storageengine "PastureDB/storage_engine"
	"PastureDB/types"

	"github.com/google/uuid"
)

func NewServer(cfg config.Config, manager *storageengine.DBManager) *Server {
	return &Server{
		cfg:         cfg,
		manager:     manager,
		connections: make(map[string]*ServerSideConnection),
	}
}

// Start recovers the node and makes sure the default table space exists
func (s *Server) Start(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return err
	}
	if s.manager.HasTableSpace(types.DefaultTableSpace) {
		return nil
	}
	if _, err := s.manager.CreateTableSpace(types.DefaultTableSpace); err != nil && !errors.Is(err, dberror.ErrTableSpaceExists) {
		return err
	}
	return nil
}

// Close drops every connection, then checkpoints and closes the table spaces
func (s *Server) Close() error {
	s.mu.Lock()
	connections := make([]*ServerSideConnection, 0, len(s.connections))
	for _, c := range s.connections {
		connections = append(connections, c)
	}
	s.mu.Unlock()

	for _, c := range connections {
		c.Close()
	}
	return s.manager.Close()
}

func (s *Server) CreateConnection(channel Channel) *ServerSideConnection {
	conn := &ServerSideConnection{
		id:       uuid.NewString(),
		channel:  channel,
		server:   s,
		prepared: make(map[uint64]*plan.ExecutionPlan),
	}

	s.mu.Lock()
	s.connections[conn.id] = conn
	s.mu.Unlock()

	logging.WithConnection(conn.id).Info("connection opened", "remote", channel.RemoteAddress())
	return conn
}

func (s *Server) ConnectionClosed(conn *ServerSideConnection) {
	s.mu.Lock()
	_, ok := s.connections[conn.id]
	delete(s.connections, conn.id)
	s.mu.Unlock()

	if ok {
		logging.WithConnection(conn.id).Info("connection closed")
	}
}

func (s *Server) Connection(id string) (*ServerSideConnection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	return conn, ok
}

func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *Server) Manager() *storageengine.DBManager {
	return s.manager
}
