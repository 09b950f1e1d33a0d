package http

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fieldwork/fieldwork-backend/internal/auth"
	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
	"github.com/fieldwork/fieldwork-backend/internal/projects/service"
)

type Handler struct {
	svc *service.ProjectService
}

func Register(rg *gin.RouterGroup, svc *service.ProjectService) {
	h := &Handler{svc: svc}

	rg.GET("/hall", h.hall)
	rg.GET("/detail/:id", h.detail)

	rg.GET("/list", auth.RequireUser(), h.myProjects)
	rg.POST("/add", auth.RequireUser(), h.create)
	rg.POST("/update/:id", auth.RequireUser(), h.update)
	rg.DELETE("/delete/:id", auth.RequireUser(), h.delete)
	rg.POST("/push", auth.RequireUser(), h.push)
	rg.GET("/auditList", auth.RequireUser(), h.auditList)
	rg.POST("/audit", auth.RequireUser(), h.applyAudit)
	rg.POST("/take", auth.RequireUser(), h.take)
	rg.GET("/myTakeList", auth.RequireUser(), h.myTakeList)
}

func (h *Handler) hall(c *gin.Context) {
	q := service.HallQuery{
		Page: intQuery(c, "pageNo", 1),
		Size: intQuery(c, "pageSize", 10),
	}
	q.RadiusMeters, _ = strconv.ParseFloat(c.Query("distance"), 64)
	if lat, err := strconv.ParseFloat(c.Query("latitude"), 64); err == nil {
		if lon, err := strconv.ParseFloat(c.Query("longitude"), 64); err == nil {
			q.Latitude, q.Longitude = &lat, &lon
		}
	}

	views, pg, err := h.svc.Hall(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(views, pg))
}

func (h *Handler) myProjects(c *gin.Context) {
	views, pg, err := h.svc.MyProjects(c.Request.Context(), auth.UserID(c),
		strings.TrimSpace(c.Query("name")), intQuery(c, "pageNo", 1), intQuery(c, "pageSize", 10))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(views, pg))
}

func (h *Handler) detail(c *gin.Context) {
	detail, err := h.svc.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": detail})
}

func (h *Handler) create(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("projectName"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "projectName required"})
		return
	}

	attachments, err := formAttachments(c)
	if err != nil {
		fail(c, err)
		return
	}

	in := domain.CreateProjectInput{
		PublisherID: auth.UserID(c),
		Name:        name,
		Technology:  c.PostForm("technology"),
		Request:     c.PostForm("request"),
		Category:    c.PostForm("category"),
	}
	p, err := h.svc.Create(c.Request.Context(), in, attachments)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) update(c *gin.Context) {
	attachments, err := formAttachments(c)
	if err != nil {
		fail(c, err)
		return
	}

	in := domain.UpdateProjectInput{
		Name:       strings.TrimSpace(c.PostForm("projectName")),
		Technology: c.PostForm("technology"),
		Request:    c.PostForm("request"),
		Category:   c.PostForm("category"),
	}
	p, err := h.svc.Update(c.Request.Context(), c.Param("id"), in, attachments)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) push(c *gin.Context) {
	var req pushReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	status := domain.PushClosed
	if req.Status == "open" {
		status = domain.PushOpen
	} else if req.Status != "closed" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "status must be open or closed"})
		return
	}

	if err := h.svc.SetPush(c.Request.Context(), req.ID, status); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) auditList(c *gin.Context) {
	rows, pg, err := h.svc.AuditList(c.Request.Context(), auth.UserID(c),
		intQuery(c, "pageNo", 1), intQuery(c, "pageSize", 10))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(rows, pg))
}

func (h *Handler) applyAudit(c *gin.Context) {
	var req auditReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	if err := h.svc.ApplyAudit(c.Request.Context(), auth.UserID(c), req.ProjectID, req.Decision, req.Remark); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) take(c *gin.Context) {
	var req takeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	accept := true
	if req.Accept != nil {
		accept = *req.Accept
	}

	claim, err := h.svc.Take(c.Request.Context(), auth.UserID(c), req.ProjectID, req.Distance, accept)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"ok": false, "taken": false, "reason": takeReason(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "taken": claim.Accepted(), "claim": claim})
}

func (h *Handler) myTakeList(c *gin.Context) {
	views, pg, err := h.svc.MyTakenProjects(c.Request.Context(), auth.UserID(c),
		intQuery(c, "pageNo", 1), intQuery(c, "pageSize", 10))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(views, pg))
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

// formAttachments pulls the uploaded "files" parts out of the multipart
// form, rejecting more than the annex limit before any bytes are read.
func formAttachments(c *gin.Context) ([]domain.Attachment, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// no multipart body at all means no attachments
		return nil, nil
	}

	headers := form.File["files"]
	if len(headers) > domain.MaxAnnexes {
		return nil, domain.ErrAnnexLimit
	}

	out := make([]domain.Attachment, 0, len(headers))
	for _, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Attachment{Name: fh.Filename, Data: data})
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
