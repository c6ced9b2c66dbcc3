package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"PastureDB/dberror"
	"PastureDB/server"
	storageengine "PastureDB/storage_engine"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

/*
Go client of the HTTP front

A Client opens one server-side connection per Connect call. Statement failures come back as
*dberror.DBError values carrying the same code as on the server, so callers can match them
with errors.Is.
*/

const (
	connectionsEndpoint = "/api/v1/connections"
	tableSpacesEndpoint = "/api/v1/tablespaces"
	defaultTimeout      = 30 * time.Second
)

type Client struct {
	http *resty.Client
}

type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	RootCertificate    string
}

func New(baseURL string, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(server.JSON.Marshal).
		SetJSONUnmarshaler(server.JSON.Unmarshal)
	if opts.InsecureSkipVerify {
		c.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if opts.RootCertificate != "" {
		c.SetRootCertificate(opts.RootCertificate)
	}
	return &Client{http: c}
}

// Conn is a connection opened on the server
type Conn struct {
	id     string
	client *Client
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/health")
	if err := check(resp, err, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	var out struct {
		ID string `json:"id"`
	}
	var failure server.Message
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&failure).Post(connectionsEndpoint)
	if err := check(resp, err, &failure); err != nil {
		return nil, err
	}
	return &Conn{id: out.ID, client: c}, nil
}

func (c *Client) TableSpaces(ctx context.Context) ([]storageengine.TableSpaceStatus, error) {
	var out []storageengine.TableSpaceStatus
	var failure server.Message
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&failure).Get(tableSpacesEndpoint)
	if err := check(resp, err, &failure); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTableSpace(ctx context.Context, name string) error {
	var failure server.Message
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetError(&failure).
		Post(tableSpacesEndpoint)
	return check(resp, err, &failure)
}

func (c *Client) DropTableSpace(ctx context.Context, name string) error {
	var failure server.Message
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("name", name).
		SetError(&failure).
		Delete(tableSpacesEndpoint + "/{name}")
	return check(resp, err, &failure)
}

func (c *Client) Checkpoint(ctx context.Context, tableSpace string) (uint64, error) {
	var out struct {
		LSN uint64 `json:"lsn"`
	}
	var failure server.Message
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("name", tableSpace).
		SetResult(&out).
		SetError(&failure).
		Post(tableSpacesEndpoint + "/{name}/checkpoint")
	if err := check(resp, err, &failure); err != nil {
		return 0, err
	}
	return out.LSN, nil
}

func (c *Conn) ID() string { return c.id }

// Send posts one request and returns its non-error reply
func (c *Conn) Send(ctx context.Context, request *server.Message) (*server.Message, error) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	var reply, failure server.Message
	resp, err := c.client.http.R().SetContext(ctx).
		SetPathParam("id", c.id).
		SetBody(request).
		SetResult(&reply).
		SetError(&failure).
		Post(connectionsEndpoint + "/{id}/requests")
	if err := check(resp, err, &failure); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Execute runs a statement in tableSpace, an empty name means the default table space
func (c *Conn) Execute(ctx context.Context, tableSpace string, stmt *server.StatementDTO, params ...any) (*server.ResultDTO, error) {
	reply, err := c.Send(ctx, &server.Message{Type: server.TypeExecute, TableSpace: tableSpace, Statement: stmt, Parameters: params})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// Prepare returns the id of a plan that stays usable on this connection
func (c *Conn) Prepare(ctx context.Context, tableSpace string, stmt *server.StatementDTO) (uint64, error) {
	reply, err := c.Send(ctx, &server.Message{Type: server.TypePrepare, TableSpace: tableSpace, Statement: stmt})
	if err != nil {
		return 0, err
	}
	return reply.PlanID, nil
}

func (c *Conn) ExecutePrepared(ctx context.Context, tableSpace string, planID uint64, params ...any) (*server.ResultDTO, error) {
	reply, err := c.Send(ctx, &server.Message{Type: server.TypeExecute, TableSpace: tableSpace, PlanID: planID, Parameters: params})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

func (c *Conn) Close(ctx context.Context) error {
	var failure server.Message
	resp, err := c.client.http.R().SetContext(ctx).
		SetPathParam("id", c.id).
		SetError(&failure).
		Delete(connectionsEndpoint + "/{id}")
	return check(resp, err, &failure)
}

// check turns a transport error or an error response into an error
func check(resp *resty.Response, err error, failure *server.Message) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	if failure == nil || failure.Error == "" {
		return fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode()), resp.String())
	}
	if failure.Code == "" {
		return fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode()), failure.Error)
	}
	return replyError(failure)
}

// replyError rebuilds the typed error an ERROR reply carries
func replyError(reply *server.Message) error {
	if code := dberror.CodeFromString(reply.Code); code != nil {
		return dberror.New(code, "%s", reply.Error).WithTableSpace(reply.TableSpace)
	}
	return errors.New(reply.Error)
}
