package audittrail

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleSystem))
	read.GET("/imports/:id/applied", h.ListApplied)
}

func (h *Handler) ListApplied(c echo.Context) error {
	importID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid import id")
	}
	entries, err := h.svc.ListByImport(c.Request().Context(), importID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*AppliedRecordEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}
