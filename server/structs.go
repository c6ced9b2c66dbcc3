package server

import (
	"net/http"
	"sync"

	"PastureDB/config"
	"PastureDB/plan"
	storageengine "PastureDB/storage_engine"
)

// Channel is the transport a connection replies on
type Channel interface {
	RemoteAddress() string
	SendReply(reply *Message) error
	Close() error
}

// Server tracks the open connections of the node and routes their requests to the DB manager
type Server struct {
	cfg     config.Config
	manager *storageengine.DBManager

	mu          sync.RWMutex
	connections map[string]*ServerSideConnection

	httpServer *http.Server
}

// ServerSideConnection is one client session. Plans it prepared stay usable for the
// session even after the plan cache evicted them.
type ServerSideConnection struct {
	id      string
	channel Channel
	server  *Server

	mu       sync.Mutex
	prepared map[uint64]*plan.ExecutionPlan
	closed   bool
}
