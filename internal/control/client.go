// ABOUTME: Websocket client for the hound control protocol
// ABOUTME: Sends one request at a time and maps remote error kinds back to hound errors
package control

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/hound/internal/protocol"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// defaultTimeout bounds requests whose context has no deadline
const defaultTimeout = 5 * time.Second

// RemoteError is a failed response from the server
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap maps the remote kind onto the matching hound sentinel so callers can use errors.Is
func (e *RemoteError) Unwrap() error {
	for k := hound.KindInvalidArgument; k <= hound.KindUnsupported; k++ {
		if k.String() == e.Kind {
			return kindSentinel(k)
		}
	}
	return nil
}

func kindSentinel(k hound.Kind) error {
	switch k {
	case hound.KindInvalidArgument:
		return hound.ErrInvalidArgument
	case hound.KindOutOfMemory:
		return hound.ErrOutOfMemory
	case hound.KindAlreadyExists:
		return hound.ErrAlreadyExists
	case hound.KindNotFound:
		return hound.ErrNotFound
	case hound.KindBusy:
		return hound.ErrBusy
	case hound.KindUnsupported:
		return hound.ErrUnsupported
	}
	return nil
}

// Client is a control connection to a daemon
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	nextID int
}

// Dial connects to the daemon at addr (host:port)
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Do sends req and waits for its response. Failed responses become a *RemoteError.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req.ID = strconv.Itoa(c.nextID)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	if err := c.conn.WriteJSON(req); err != nil {
		return protocol.Response{}, fmt.Errorf("failed to send %s: %w", req.Type, err)
	}

	for {
		var resp protocol.Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			return protocol.Response{}, fmt.Errorf("failed to read %s response: %w", req.Type, err)
		}
		// responses to earlier timed-out requests are skipped
		if resp.ID != req.ID {
			continue
		}
		if !resp.OK {
			return resp, &RemoteError{Kind: resp.Kind, Message: resp.Error}
		}
		return resp, nil
	}
}

// Info returns the daemon's identity
func (c *Client) Info(ctx context.Context) (*protocol.ServerInfo, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeServerInfo})
	if err != nil {
		return nil, err
	}
	return resp.Server, nil
}

// Sources lists source names
func (c *Client) Sources(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeListSources})
	return resp.Sources, err
}

// Sinks lists sink names
func (c *Client) Sinks(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeListSinks})
	return resp.Sinks, err
}

// Connections lists live connections
func (c *Client) Connections(ctx context.Context) ([]hound.ConnectionInfo, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeListConnections})
	return resp.Connections, err
}

// Devices lists registered devices
func (c *Client) Devices(ctx context.Context) ([]hound.DeviceInfo, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeListDevices})
	return resp.Devices, err
}

// Graph fetches a full snapshot
func (c *Client) Graph(ctx context.Context) (*hound.Graph, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeGraphSnapshot})
	if err != nil {
		return nil, err
	}
	return resp.Graph, nil
}

// Connect links source to sink
func (c *Client) Connect(ctx context.Context, source, sink string) (*hound.ConnectionInfo, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeConnect, Source: source, Sink: sink})
	if err != nil {
		return nil, err
	}
	return resp.Connection, nil
}

// Disconnect removes every connection touching source or sink
func (c *Client) Disconnect(ctx context.Context, source, sink string) (int, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeDisconnect, Source: source, Sink: sink})
	return resp.Removed, err
}

// DisconnectPair removes only the connections from source to sink
func (c *Client) DisconnectPair(ctx context.Context, source, sink string) (int, error) {
	resp, err := c.Do(ctx, protocol.Request{Type: protocol.TypeDisconnectPair, Source: source, Sink: sink})
	return resp.Removed, err
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
