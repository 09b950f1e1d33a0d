package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldwork/fieldwork-backend/internal/auth"
	"github.com/fieldwork/fieldwork-backend/internal/files"
	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
)

// Handler serves the standalone annex endpoints: upload outside the
// project create/update flow, URL refresh and deletion.
type Handler struct {
	uploader *files.Uploader
}

func Register(rg *gin.RouterGroup, uploader *files.Uploader) {
	h := &Handler{uploader: uploader}

	rg.POST("/upload/:projectId", auth.RequireUser(), h.upload)
	rg.GET("/url/:projectId/:id", h.refreshURL)
	rg.DELETE("/:projectId/:id", auth.RequireUser(), h.delete)
}

func (h *Handler) upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "multipart body required"})
		return
	}

	projectID := c.Param("projectId")
	uploaded := make([]domain.Annex, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}

		annex, err := h.uploader.UploadAnnex(c.Request.Context(), projectID,
			domain.Attachment{Name: fh.Filename, Data: data})
		if err != nil {
			c.JSON(fileStatus(err), gin.H{"ok": false, "error": err.Error()})
			return
		}
		uploaded = append(uploaded, *annex)
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "annexes": uploaded})
}

func (h *Handler) refreshURL(c *gin.Context) {
	url, err := h.uploader.RefreshURL(c.Request.Context(), c.Param("projectId"), c.Param("id"))
	if err != nil {
		c.JSON(fileStatus(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "url": url})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.uploader.DeleteAnnex(c.Request.Context(), c.Param("projectId"), c.Param("id")); err != nil {
		c.JSON(fileStatus(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func fileStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAnnexLimit):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
