package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fieldwork/fieldwork-backend/internal/auth"
	"github.com/fieldwork/fieldwork-backend/internal/auth/service"
	"github.com/fieldwork/fieldwork-backend/internal/sms"
	"github.com/fieldwork/fieldwork-backend/internal/users"
)

type Handler struct {
	svc *service.AuthService
}

func Register(rg *gin.RouterGroup, svc *service.AuthService) {
	h := &Handler{svc: svc}

	rg.POST("/login", h.login)
	rg.POST("/register", h.register)
	rg.GET("/info", auth.RequireUser(), h.info)
}

type loginReq struct {
	Phone    string `json:"phone"`
	Captcha  string `json:"captcha"`
	UserType string `json:"userType"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	res, err := h.svc.Login(c.Request.Context(), strings.TrimSpace(req.Phone), strings.TrimSpace(req.Captcha), req.UserType)
	if err != nil {
		c.JSON(authStatus(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": res.Token, "isAuditor": res.IsAuditor})
}

type registerReq struct {
	Phone      string `json:"phone"`
	Captcha    string `json:"captcha"`
	UserName   string `json:"userName"`
	NickName   string `json:"nickName"`
	OrgType    int    `json:"orgType"`
	OrgName    string `json:"orgName"`
	Technology string `json:"technology"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	u, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Phone:      strings.TrimSpace(req.Phone),
		Code:       strings.TrimSpace(req.Captcha),
		UserName:   strings.TrimSpace(req.UserName),
		NickName:   strings.TrimSpace(req.NickName),
		OrgType:    req.OrgType,
		OrgName:    req.OrgName,
		Technology: req.Technology,
	})
	if err != nil {
		c.JSON(authStatus(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "user": u})
}

func (h *Handler) info(c *gin.Context) {
	info, err := h.svc.Info(c.Request.Context(), auth.UserID(c))
	if err != nil {
		c.JSON(authStatus(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": info})
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrUserDisabled):
		return http.StatusForbidden
	case errors.Is(err, users.ErrPhoneTaken),
		errors.Is(err, sms.ErrCodeExpired),
		errors.Is(err, sms.ErrCodeMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
