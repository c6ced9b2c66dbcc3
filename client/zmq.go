package client

import (
	"context"
	"fmt"
	"sync"

	"PastureDB/server"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

// ZMQConn talks to the ZeroMQ front over a REQ socket. Requests are sent one at a time.
type ZMQConn struct {
	mu     sync.Mutex
	socket zmq4.Socket
}

func DialZMQ(ctx context.Context, endpoint string) (*ZMQConn, error) {
	socket := zmq4.NewReq(ctx)
	if err := socket.Dial(endpoint); err != nil {
		socket.Close()
		return nil, fmt.Errorf("zmq dial %s: %w", endpoint, err)
	}
	return &ZMQConn{socket: socket}, nil
}

// Send returns the reply to request, an ERROR reply comes back as an error
func (c *ZMQConn) Send(request *server.Message) (*server.Message, error) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	payload, err := server.JSON.Marshal(request)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.socket.Send(zmq4.NewMsg(payload)); err != nil {
		return nil, err
	}
	msg, err := c.socket.Recv()
	if err != nil {
		return nil, err
	}

	var reply server.Message
	if err := server.JSON.Unmarshal(msg.Bytes(), &reply); err != nil {
		return nil, fmt.Errorf("malformed reply: %w", err)
	}
	if reply.Type == server.TypeError {
		return nil, replyError(&reply)
	}
	return &reply, nil
}

func (c *ZMQConn) Execute(tableSpace string, stmt *server.StatementDTO, params ...any) (*server.ResultDTO, error) {
	reply, err := c.Send(&server.Message{Type: server.TypeExecute, TableSpace: tableSpace, Statement: stmt, Parameters: params})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

func (c *ZMQConn) Close() error {
	return c.socket.Close()
}
