package server

import (
	"context"

	"PastureDB/dberror"
	"PastureDB/logging"
	"PastureDB/plan"
	"PastureDB/types"
)

/*
This file contains the request loop of a connection
A request is decoded into a statement, prepared through the plan cache, executed by the DB
manager and answered on the channel of the connection. Every request gets exactly one reply,
failures included: they become an ERROR reply carrying the error code and table space.
*/

func (c *ServerSideConnection) ID() string { return c.id }

func (c *ServerSideConnection) RemoteAddress() string { return c.channel.RemoteAddress() }

// RequestReceived handles one request and sends its reply.
// The returned error is a transport failure, statement failures are replies.
func (c *ServerSideConnection) RequestReceived(ctx context.Context, request *Message) error {
	reply, err := c.handle(ctx, request)
	if err != nil {
		log := logging.WithConnection(c.id)
		if dberror.KindOf(err) == dberror.KindValidation || dberror.KindOf(err) == dberror.KindDefinition {
			log.Debug("request rejected", "request", request.Type, "error", err)
		} else {
			log.Warn("request failed", "request", request.Type, "error", err)
		}
		reply = errorReply(request.ID, err)
	}
	reply.ReplyTo = request.ID
	return c.channel.SendReply(reply)
}

func (c *ServerSideConnection) handle(ctx context.Context, request *Message) (*Message, error) {
	if c.isClosed() {
		return nil, dberror.New(dberror.ErrStatementValidation, "connection %s is closed", c.id)
	}

	manager := c.server.manager
	tableSpace := request.TableSpace
	if tableSpace == "" {
		tableSpace = types.DefaultTableSpace
	}

	switch request.Type {
	case TypeExecute:
		p, err := c.planFor(ctx, tableSpace, request)
		if err != nil {
			return nil, err
		}
		res, err := manager.ExecutePlan(ctx, p, types.NewEvaluationContext(request.Parameters...))
		if err != nil {
			return nil, err
		}
		result := toResultDTO(res)
		result.PlanID = p.ID()
		if root := p.OriginalRoot(); root != nil {
			result.Plan = root.String()
		}
		return &Message{Type: TypeResult, TableSpace: tableSpace, Result: result, LSN: res.LSN}, nil

	case TypePrepare:
		p, err := c.prepare(ctx, tableSpace, request.Statement)
		if err != nil {
			return nil, err
		}
		reply := &Message{Type: TypePrepared, TableSpace: tableSpace, PlanID: p.ID()}
		if root := p.OriginalRoot(); root != nil {
			reply.Result = &ResultDTO{PlanID: p.ID(), Plan: root.String()}
		}
		return reply, nil

	case TypeCreateTableSpace:
		if _, err := manager.CreateTableSpace(request.TableSpace); err != nil {
			return nil, err
		}
		return &Message{Type: TypeAck, TableSpace: request.TableSpace}, nil

	case TypeDropTableSpace:
		if err := manager.DropTableSpace(request.TableSpace); err != nil {
			return nil, err
		}
		return &Message{Type: TypeAck, TableSpace: request.TableSpace}, nil

	case TypeCheckpoint:
		lsn, err := manager.Checkpoint(tableSpace)
		if err != nil {
			return nil, err
		}
		return &Message{Type: TypeAck, TableSpace: tableSpace, LSN: lsn}, nil
	}
	return nil, dberror.New(dberror.ErrStatementValidation, "unknown request type %q", request.Type)
}

// planFor returns the plan a request executes: a plan prepared earlier on this connection, or
// the cached plan of the statement it carries
func (c *ServerSideConnection) planFor(ctx context.Context, tableSpace string, request *Message) (*plan.ExecutionPlan, error) {
	if request.Statement == nil && request.PlanID != 0 {
		c.mu.Lock()
		p, ok := c.prepared[request.PlanID]
		c.mu.Unlock()
		if !ok {
			return nil, dberror.New(dberror.ErrStatementValidation, "no plan %d prepared on this connection", request.PlanID)
		}
		return p, nil
	}
	stmt, err := ToStatement(tableSpace, request.Statement, c.server.manager.Catalog)
	if err != nil {
		return nil, err
	}
	return c.server.manager.Prepare(ctx, stmt)
}

func (c *ServerSideConnection) prepare(ctx context.Context, tableSpace string, dto *StatementDTO) (*plan.ExecutionPlan, error) {
	stmt, err := ToStatement(tableSpace, dto, c.server.manager.Catalog)
	if err != nil {
		return nil, err
	}
	p, err := c.server.manager.Prepare(ctx, stmt)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, dberror.New(dberror.ErrStatementValidation, "connection %s is closed", c.id)
	}
	c.prepared[p.ID()] = p
	return p, nil
}

// Close forgets the prepared plans and closes the channel
func (c *ServerSideConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.prepared = nil
	c.mu.Unlock()

	c.server.ConnectionClosed(c)
	return c.channel.Close()
}

func (c *ServerSideConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
