// Package transport implements the remote side of the data plane's link
// chain over HTTP: an invocation client (RemoteTransport) and an
// invocation server (echo.HandlerFunc) that together let one node's
// handles reach instances hosted on another node (§4.1, §6 wire format).
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/common/clients"
	"github.com/edgeless-project/edgeless/pkg/api"
	"github.com/edgeless-project/edgeless/pkg/dataplane"
)

// wireEvent is the JSON envelope exchanged with a peer's invocation
// endpoint. Payload/metadata are base64-carried inside JSON rather than a
// raw binary frame, keeping this HTTP surface JSON-everywhere like the
// rest of this codebase's wire formats; field names mirror §6's format.
type wireEvent struct {
	Source    api.InstanceID `json:"source"`
	Target    api.InstanceID `json:"target"`
	ChannelID uint64         `json:"channel_id"`
	Kind      int            `json:"kind"`
	Payload   []byte         `json:"payload,omitempty"`
	Metadata  []byte         `json:"metadata,omitempty"`
}

// wireCallRet is the invocation endpoint's response body for a call.
type wireCallRet struct {
	Kind    int    `json:"kind"`
	Payload []byte `json:"payload,omitempty"`
}

func toWire(ev dataplane.Event) wireEvent {
	return wireEvent{
		Source:    ev.Source,
		Target:    ev.Target,
		ChannelID: ev.ChannelID,
		Kind:      int(ev.Kind),
		Payload:   ev.Payload,
		Metadata:  ev.Metadata,
	}
}

func fromWire(w wireEvent) dataplane.Event {
	return dataplane.Event{
		Source:    w.Source,
		Target:    w.Target,
		ChannelID: w.ChannelID,
		Kind:      dataplane.Kind(w.Kind),
		Payload:   w.Payload,
		Metadata:  w.Metadata,
		Created:   time.Now(),
	}
}

// Client is an HTTP-backed dataplane.RemoteTransport addressing one peer
// node's invocation_url.
type Client struct {
	http          *clients.HTTPClient
	invocationURL string
}

// NewClient builds a transport client bound to one peer's invocation_url,
// as advertised in its NodeDescriptor / UpdateNodeRequest.
func NewClient(http *clients.HTTPClient, invocationURL string) *Client {
	return &Client{http: http, invocationURL: invocationURL}
}

func (c *Client) Send(ctx context.Context, ev dataplane.Event) error {
	return c.http.PostJSON(ctx, c.invocationURL+"/invoke/cast", toWire(ev), nil)
}

func (c *Client) Call(ctx context.Context, ev dataplane.Event) (dataplane.CallRet, error) {
	var resp wireCallRet
	if err := c.http.PostJSON(ctx, c.invocationURL+"/invoke/call", toWire(ev), &resp); err != nil {
		return dataplane.CallRet{Kind: dataplane.KindErr}, err
	}
	return dataplane.CallRet{Kind: dataplane.Kind(resp.Kind), Payload: resp.Payload}, nil
}

var _ dataplane.RemoteTransport = (*Client)(nil)

// Server is the invocation endpoint's handler set, dispatching inbound
// wire events to the node-local registry (§4.1 "invocation server").
type Server struct {
	registry *dataplane.Registry
}

func NewServer(registry *dataplane.Registry) *Server {
	return &Server{registry: registry}
}

// Register mounts the invocation endpoints on an echo group.
func (s *Server) Register(g *echo.Group) {
	g.POST("/invoke/cast", s.handleCast)
	g.POST("/invoke/call", s.handleCall)
}

func (s *Server) handleCast(c echo.Context) error {
	var w wireEvent
	if err := c.Bind(&w); err != nil {
		return c.JSON(http.StatusBadRequest, apierr.ToResponse(apierr.NewBadRequest("malformed event", err.Error())))
	}
	ev := fromWire(w)
	h, ok := s.registry.Lookup(ev.Target.Component)
	if !ok {
		// Fire-and-forget: an absent target is dropped without a log entry,
		// and the peer is not told its cast failed (§4.1 failure semantics).
		return c.NoContent(http.StatusOK)
	}
	h.DeliverInbound(c.Request().Context(), ev)
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleCall(c echo.Context) error {
	var w wireEvent
	if err := c.Bind(&w); err != nil {
		return c.JSON(http.StatusBadRequest, apierr.ToResponse(apierr.NewBadRequest("malformed event", err.Error())))
	}
	ev := fromWire(w)
	h, ok := s.registry.Lookup(ev.Target.Component)
	if !ok {
		return c.JSON(http.StatusNotFound, apierr.ToResponse(apierr.NewNotFound("unknown target instance")))
	}
	ret, err := h.DeliverInbound(c.Request().Context(), ev)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, apierr.ToResponse(err))
	}
	return c.JSON(http.StatusOK, wireCallRet{Kind: int(ret.Kind), Payload: ret.Payload})
}
