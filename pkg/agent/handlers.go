package agent

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// Handlers is the echo-facing HTTP surface for the node agent's Function
// Instance API, Resource Configuration API, and Node Management (§4.2,
// §6). The orchestrator is the only caller.
type Handlers struct {
	agent *Agent
}

func NewHandlers(agent *Agent) *Handlers { return &Handlers{agent: agent} }

// Register mounts every route on an echo group.
func (h *Handlers) Register(g *echo.Group) {
	g.POST("/functions", h.startFunction)
	g.DELETE("/functions/:lid", h.stopFunction)
	g.PATCH("/functions/:lid", h.patchFunction)

	g.POST("/resources", h.startResource)
	g.DELETE("/resources/:lid", h.stopResource)
	g.PATCH("/resources/:lid", h.patchResource)

	g.POST("/peers", h.updatePeers)
	g.POST("/reset", h.reset)
}

func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch apierr.KindOf(err) {
	case apierr.BadRequest:
		status = http.StatusBadRequest
	case apierr.NotFound:
		status = http.StatusNotFound
	case apierr.Capacity:
		status = http.StatusConflict
	case apierr.Transport:
		status = http.StatusBadGateway
	case apierr.Runtime:
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, apierr.ToResponse(err))
}

func (h *Handlers) startFunction(c echo.Context) error {
	var req api.SpawnFunctionRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("malformed spawn request", err.Error()))
	}
	resp, err := h.agent.StartFunction(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) stopFunction(c echo.Context) error {
	lid, err := parseComponentID(c.Param("lid"))
	if err != nil {
		return respondError(c, err)
	}
	if err := h.agent.StopFunction(c.Request().Context(), lid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handlers) patchFunction(c echo.Context) error {
	lid, err := parseComponentID(c.Param("lid"))
	if err != nil {
		return respondError(c, err)
	}
	var req api.PatchRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("malformed patch request", err.Error()))
	}
	if err := h.agent.PatchFunction(c.Request().Context(), lid, req.OutputMapping); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handlers) startResource(c echo.Context) error {
	var req api.SpawnResourceRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("malformed spawn request", err.Error()))
	}
	resp, err := h.agent.StartResource(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) stopResource(c echo.Context) error {
	lid, err := parseComponentID(c.Param("lid"))
	if err != nil {
		return respondError(c, err)
	}
	if err := h.agent.StopResource(c.Request().Context(), lid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handlers) patchResource(c echo.Context) error {
	lid, err := parseComponentID(c.Param("lid"))
	if err != nil {
		return respondError(c, err)
	}
	var req api.PatchRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("malformed patch request", err.Error()))
	}
	if err := h.agent.PatchResource(c.Request().Context(), lid, req.OutputMapping); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// updatePeersRequest is the Node Management wire shape for add_peer/
// del_peer batches (§4.2).
type updatePeersRequest struct {
	Add map[string]string `json:"add,omitempty"` // node_id -> invocation_url
	Del []string          `json:"del,omitempty"`
}

func (h *Handlers) updatePeers(c echo.Context) error {
	var req updatePeersRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("malformed peer update", err.Error()))
	}
	add := make(map[api.NodeID]string, len(req.Add))
	for idStr, url := range req.Add {
		id, err := parseComponentID(idStr)
		if err != nil {
			return respondError(c, err)
		}
		add[id] = url
	}
	del := make([]api.NodeID, 0, len(req.Del))
	for _, idStr := range req.Del {
		id, err := parseComponentID(idStr)
		if err != nil {
			return respondError(c, err)
		}
		del = append(del, id)
	}
	h.agent.UpdatePeers(add, del)
	return c.NoContent(http.StatusOK)
}

func (h *Handlers) reset(c echo.Context) error {
	h.agent.Reset(c.Request().Context())
	return c.NoContent(http.StatusOK)
}

func parseComponentID(s string) (api.ComponentID, error) {
	id, err := api.ParseID(s)
	if err != nil {
		return api.ComponentID{}, apierr.NewBadRequest("malformed id", s)
	}
	return id, nil
}
