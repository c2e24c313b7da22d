package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/pkg/errs"
	"github.com/clinrec/clinrec/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleSystem))
	read.GET("/actors", h.ListActors)
	read.GET("/actors/:id", h.GetActor)
	read.GET("/actors/resolve/:ref", h.ResolveRole)

	admin := api.Group("", auth.RequireRole(auth.RoleSystem))
	admin.POST("/actors", h.CreateActor)
	admin.PATCH("/actors/:id/active", h.SetActive)
}

type createActorRequest struct {
	ExternalRef string `json:"external_ref"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (h *Handler) CreateActor(c echo.Context) error {
	var req createActorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Create(c.Request().Context(), req.ExternalRef, req.DisplayName, req.Role)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetActor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid actor id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ResolveRole(c echo.Context) error {
	role, err := h.svc.ResolveRole(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"role": role})
}

func (h *Handler) ListActors(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"role", "active", "name"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	actors, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(actors, total, pg.Limit, pg.Offset))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetActive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid actor id")
	}
	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetActive(c.Request().Context(), id, req.Active); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
