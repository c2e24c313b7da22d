package fieldcatalog

import (
	"net/http"

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
	read.GET("/fields", h.ListFields)
	read.GET("/fields/migration-candidates", h.ListCandidates)
	read.GET("/fields/:name", h.GetField)

	write := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleSystem))
	write.POST("/fields/register", h.RegisterField)

	admin := api.Group("", auth.RequireRole(auth.RoleSystem))
	admin.POST("/fields/:name/promote", h.PromoteField)
}

type registerRequest struct {
	FieldName    string `json:"field_name"`
	Specialty    string `json:"specialty"`
	DisplayLabel string `json:"display_label"`
	FieldType    string `json:"field_type"`
}

func (h *Handler) RegisterField(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.Register(c.Request().Context(), req.FieldName, req.Specialty, req.DisplayLabel, req.FieldType)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	status := http.StatusOK
	if f.UsageCount == 1 {
		status = http.StatusCreated
	}
	return c.JSON(status, f)
}

func (h *Handler) GetField(c echo.Context) error {
	f, err := h.svc.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, f)
}

type promoteRequest struct {
	TargetStore  string `json:"target_store"`
	TargetColumn string `json:"target_column"`
}

func (h *Handler) PromoteField(c echo.Context) error {
	var req promoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.Promote(c.Request().Context(), c.Param("name"), req.TargetStore, req.TargetColumn)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ListCandidates(c echo.Context) error {
	out, err := h.svc.ListCandidates(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListFields(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"specialty", "promoted", "label"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	fields, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(fields, total, pg.Limit, pg.Offset))
}
