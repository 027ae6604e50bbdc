package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// Handlers is the echo-facing HTTP surface for the Workflow Instance API
// (external clients) and Domain Registration (inbound from orchestrators)
// (§4.4, §6).
type Handlers struct {
	ctrl *Controller
}

func NewHandlers(ctrl *Controller) *Handlers { return &Handlers{ctrl: ctrl} }

func (h *Handlers) Register(g *echo.Group) {
	g.POST("/domains/register", h.registerDomain)

	g.POST("/workflows", h.startWorkflow)
	g.DELETE("/workflows/:id", h.stopWorkflow)
	g.GET("/workflows", h.listWorkflows)
	g.GET("/workflows/:id", h.inspectWorkflow)
	g.POST("/workflows/migrate", h.migrateWorkflow)
	g.GET("/domains", h.domains)
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

func (h *Handlers) registerDomain(c echo.Context) error {
	var req api.UpdateDomainRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("invalid register domain request", err.Error()))
	}
	resp, err := h.ctrl.RegisterDomain(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) startWorkflow(c echo.Context) error {
	var req api.SpawnWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("invalid spawn workflow request", err.Error()))
	}
	resp, err := h.ctrl.StartWorkflow(c.Request().Context(), req.Workflow)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) stopWorkflow(c echo.Context) error {
	id, err := api.ParseID(c.Param("id"))
	if err != nil {
		return respondError(c, apierr.NewBadRequest("invalid workflow id", err.Error()))
	}
	if _, err := h.ctrl.StopWorkflow(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) listWorkflows(c echo.Context) error {
	ids := h.ctrl.List(c.Request().Context())
	return c.JSON(http.StatusOK, api.ListWorkflowsResponse{WorkflowIDs: ids})
}

func (h *Handlers) inspectWorkflow(c echo.Context) error {
	id, err := api.ParseID(c.Param("id"))
	if err != nil {
		return respondError(c, apierr.NewBadRequest("invalid workflow id", err.Error()))
	}
	info, err := h.ctrl.Inspect(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handlers) migrateWorkflow(c echo.Context) error {
	var req api.MigrateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierr.NewBadRequest("invalid migrate workflow request", err.Error()))
	}
	resp, err := h.ctrl.Migrate(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) domains(c echo.Context) error {
	domainID := api.DomainID(c.QueryParam("domain_id"))
	summaries := h.ctrl.Domains(c.Request().Context(), domainID)
	return c.JSON(http.StatusOK, api.DomainsResponse{Domains: summaries})
}
