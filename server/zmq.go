package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"PastureDB/dberror"
	"PastureDB/logging"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

/*
ZeroMQ adapter of the connection front

A REP socket answers one request at a time. Every frame is one JSON Message, the reply frame
is the Message answering it. The socket gets a single server-side connection shared by all of
its peers, so a plan prepared by one peer can be executed by another.
*/

type zmqChannel struct {
	endpoint string
	replies  chan *Message
}

func (ch *zmqChannel) RemoteAddress() string { return ch.endpoint }

func (ch *zmqChannel) SendReply(reply *Message) error {
	select {
	case ch.replies <- reply:
		return nil
	default:
		return fmt.Errorf("reply to %q while another reply is pending", reply.ReplyTo)
	}
}

func (ch *zmqChannel) Close() error { return nil }

// ZMQFront is a bound REP socket, Serve answers its requests
type ZMQFront struct {
	socket  zmq4.Socket
	channel *zmqChannel
	conn    *ServerSideConnection

	closeOnce sync.Once
	closeErr  error
}

// ListenZMQ binds a REP socket on endpoint, e.g. tcp://*:7001
func (s *Server) ListenZMQ(ctx context.Context, endpoint string) (*ZMQFront, error) {
	socket := zmq4.NewRep(ctx)
	if err := socket.Listen(endpoint); err != nil {
		socket.Close()
		return nil, fmt.Errorf("zmq listen on %s: %w", endpoint, err)
	}
	ch := &zmqChannel{endpoint: endpoint, replies: make(chan *Message, 1)}
	return &ZMQFront{
		socket:  socket,
		channel: ch,
		conn:    s.CreateConnection(ch),
	}, nil
}

// Addr is the bound address, useful when listening on port 0
func (f *ZMQFront) Addr() net.Addr { return f.socket.Addr() }

// Serve answers requests until ctx is cancelled or Close is called
func (f *ZMQFront) Serve(ctx context.Context) error {
	log := logging.WithComponent("zmq")
	log.Info("listening", "endpoint", f.channel.endpoint, "connection", f.conn.ID())

	stop := context.AfterFunc(ctx, func() { f.Close() })
	defer stop()
	defer f.Close()

	for {
		msg, err := f.socket.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, zmq4.ErrClosedConn) || f.conn.isClosed() {
				log.Info("shutting down")
				return nil
			}
			log.Warn("recv failed", "error", err)
			continue
		}

		reply := f.handle(ctx, msg.Bytes())
		payload, err := JSON.Marshal(reply)
		if err != nil {
			payload, _ = JSON.Marshal(errorReply(reply.ReplyTo, err))
		}
		if err := f.socket.Send(zmq4.NewMsg(payload)); err != nil && ctx.Err() == nil {
			log.Warn("cannot send reply", "reply_to", reply.ReplyTo, "error", err)
		}
	}
}

func (f *ZMQFront) handle(ctx context.Context, frame []byte) *Message {
	var request Message
	if err := JSON.Unmarshal(frame, &request); err != nil {
		return errorReply("", dberror.New(dberror.ErrStatementValidation, "malformed request: %v", err))
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if err := f.conn.RequestReceived(ctx, &request); err != nil {
		return errorReply(request.ID, err)
	}
	return <-f.channel.replies
}

// Close closes the shared connection and the socket
func (f *ZMQFront) Close() error {
	f.closeOnce.Do(func() {
		f.conn.Close()
		f.closeErr = f.socket.Close()
	})
	return f.closeErr
}
