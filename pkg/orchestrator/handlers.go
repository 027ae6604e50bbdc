package orchestrator

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// Handlers is the echo-facing HTTP surface for node registration (inbound
// from agents) and the Function/Resource Instance API (inbound from the
// controller) (§4.3, §6).
type Handlers struct {
	orch *Orchestrator
}

func NewHandlers(orch *Orchestrator) *Handlers { return &Handlers{orch: orch} }

func (h *Handlers) Register(g *echo.Group) {
	g.POST("/nodes/register", h.registerNode)

	g.POST("/start/function", h.startFunction)
	g.DELETE("/stop/function/:lid", h.stopFunction)
	g.POST("/start/resource", h.startResource)
	g.DELETE("/stop/resource/:lid", h.stopResource)
	g.POST("/patch", h.patch)
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

func (h *Handlers) registerNode(c echo.Context) error {
	var req api.UpdateNodeRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("invalid register node request", err.Error()))
	}
	resp, err := h.orch.RegisterNode(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) startFunction(c echo.Context) error {
	var req api.StartFunctionRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("invalid start function request", err.Error()))
	}
	lid, err := h.orch.StartFunction(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, api.StartLIDResponse{LID: lid})
}

func (h *Handlers) stopFunction(c echo.Context) error {
	lid, err := api.ParseID(c.Param("lid"))
	if err != nil {
		return respondError(c, apierr.NewBadRequest("invalid lid", err.Error()))
	}
	if err := h.orch.StopFunction(c.Request().Context(), lid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) startResource(c echo.Context) error {
	var req api.StartResourceRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("invalid start resource request", err.Error()))
	}
	lid, err := h.orch.StartResource(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, api.StartLIDResponse{LID: lid})
}

func (h *Handlers) stopResource(c echo.Context) error {
	lid, err := api.ParseID(c.Param("lid"))
	if err != nil {
		return respondError(c, apierr.NewBadRequest("invalid lid", err.Error()))
	}
	if err := h.orch.StopResource(c.Request().Context(), lid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) patch(c echo.Context) error {
	var req api.LIDPatchRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("invalid patch request", err.Error()))
	}
	if err := h.orch.Patch(c.Request().Context(), req); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
