package reconcile

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
	read.GET("/imports", h.ListImports)
	read.GET("/imports/:id", h.GetImport)

	write := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleSystem))
	write.POST("/imports", h.SubmitImport)
	write.POST("/imports/:id/decision", h.DecideImport)
}

type submitRequest struct {
	PatientID uuid.UUID    `json:"patient_id"`
	Files     []SourceFile `json:"files"`
}

func (h *Handler) SubmitImport(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actorID := auth.ActorIDFromContext(c.Request().Context())
	rec, err := h.svc.Submit(c.Request().Context(), req.PatientID, actorID, req.Files)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusAccepted, importView(rec))
}

func (h *Handler) GetImport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid import id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, importView(rec))
}

func (h *Handler) ListImports(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"patient_id", "processing_status", "review_status", "submitted_by"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	recs, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]importResponse, 0, len(recs))
	for _, rec := range recs {
		views = append(views, importView(rec))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

type decideRequest struct {
	ApprovedPaths []string `json:"approved_paths"`
	RejectedPaths []string `json:"rejected_paths"`
	Notes         string   `json:"notes"`
}

func (h *Handler) DecideImport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid import id")
	}
	var req decideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reviewerID := auth.ActorIDFromContext(c.Request().Context())
	rec, err := h.svc.Decide(c.Request().Context(), id, reviewerID, req.ApprovedPaths, req.RejectedPaths, req.Notes)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, importView(rec))
}

// importResponse adds the collapsed lifecycle status to the serialized record.
type importResponse struct {
	*ImportRecord
	Status string `json:"status"`
}

func importView(rec *ImportRecord) importResponse {
	return importResponse{ImportRecord: rec, Status: rec.Status()}
}
