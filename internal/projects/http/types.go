package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
	"github.com/fieldwork/fieldwork-backend/internal/projects/service"
	"github.com/fieldwork/fieldwork-backend/internal/users"
)

type pushReq struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "open" or "closed"
}

type auditReq struct {
	ProjectID string `json:"projectId"`
	Decision  string `json:"decision"` // "approved" or "rejected"
	Remark    string `json:"remark"`
}

type takeReq struct {
	ProjectID string  `json:"projectId"`
	Accept    *bool   `json:"accept"`
	Distance  float64 `json:"distance"`
}

func listResponse(records interface{}, pg service.Page) gin.H {
	return gin.H{
		"ok":          true,
		"records":     records,
		"total":       pg.Total,
		"currentPage": pg.Current,
		"pageSize":    pg.Size,
		"pageCount":   pg.Count,
	}
}

// statusOf maps the domain error taxonomy onto stable HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, users.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrDuplicateClaim):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAnnexLimit),
		errors.Is(err, domain.ErrOutOfRange),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// takeReason distinguishes why a claim attempt failed, surfaced to the
// client alongside ok=false.
func takeReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateClaim):
		return "duplicate"
	case errors.Is(err, domain.ErrOutOfRange):
		return "outOfRange"
	case errors.Is(err, domain.ErrNotFound):
		return "notFound"
	default:
		return "error"
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"ok": false, "error": err.Error()})
}
