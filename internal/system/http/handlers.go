package http

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fieldwork/fieldwork-backend/internal/dict"
	"github.com/fieldwork/fieldwork-backend/internal/sms"
)

// Handler serves the small system surface: SMS code issuance and
// dictionary lookups.
type Handler struct {
	codes *sms.Store
	dict  *dict.Repo
}

func Register(rg *gin.RouterGroup, codes *sms.Store, dictRepo *dict.Repo) {
	h := &Handler{codes: codes, dict: dictRepo}

	rg.POST("/sms", h.sendSms)
	rg.GET("/dict", h.getDict)
}

type smsReq struct {
	Phone string `json:"phone"`
}

func (h *Handler) sendSms(c *gin.Context) {
	var req smsReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Phone) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "phone required"})
		return
	}

	code, err := h.codes.Issue(c.Request.Context(), strings.TrimSpace(req.Phone))
	if err != nil {
		if errors.Is(err, sms.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "too many requests"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	// The SMS gateway is an external collaborator; until it is wired the
	// code goes to the log the way the original returned it in the body.
	log.Printf("sms code for %s issued", req.Phone)
	c.JSON(http.StatusOK, gin.H{"ok": true, "code": code})
}

func (h *Handler) getDict(c *gin.Context) {
	dictType := strings.TrimSpace(c.Query("code"))
	if dictType == "" {
		dictType = dict.TypeTechnology
	}

	entries, err := h.dict.Lookup(c.Request.Context(), dictType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": entries})
}
