package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PilotDataPlatform/dataset-sub000/internal/http/response"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/publishsvc"
)

type PublishHandler struct {
	log *logger.Logger
	svc *publishsvc.Service
}

func NewPublishHandler(log *logger.Logger, svc *publishsvc.Service) *PublishHandler {
	return &PublishHandler{log: log.With("handler", "PublishHandler"), svc: svc}
}

func (h *PublishHandler) Publish(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in publishsvc.PublishInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	statusID, err := h.svc.Publish(c.Request.Context(), id, in)
	if err != nil {
		h.log.Error("Publish dispatch failed", "dataset_id", id, "version", in.Version, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, gin.H{"status_id": statusID})
}

func (h *PublishHandler) Status(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	status, err := h.svc.GetStatus(c.Request.Context(), id)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, status)
}

func (h *PublishHandler) ListVersions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	rows, total, err := h.svc.ListVersions(c.Request.Context(), id, page, pageSize)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Paged(c, rows, page, pageSize, total)
}

func (h *PublishHandler) DownloadPre(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	token, err := h.svc.DownloadToken(c.Request.Context(), id, c.Query("version"))
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, gin.H{"download_hash": token})
}
