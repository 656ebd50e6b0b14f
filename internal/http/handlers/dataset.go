package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/http/response"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/datasetsvc"
)

type DatasetHandler struct {
	log *logger.Logger
	svc *datasetsvc.Service
}

func NewDatasetHandler(log *logger.Logger, svc *datasetsvc.Service) *DatasetHandler {
	return &DatasetHandler{log: log.With("handler", "DatasetHandler"), svc: svc}
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Err(c, cerr.BadRequestf("invalid id %q", c.Param(param)))
		return uuid.Nil, false
	}
	return id, true
}

func (h *DatasetHandler) Create(c *gin.Context) {
	var in datasetsvc.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	ds, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		h.log.Error("Create dataset failed", "code", in.Code, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, ds)
}

func (h *DatasetHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ds, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, ds)
}

func (h *DatasetHandler) Peek(c *gin.Context) {
	ds, err := h.svc.PeekByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, ds)
}

type listDatasetsRequest struct {
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	OrderBy   string `json:"order_by"`
	OrderType string `json:"order_type"`
}

func (h *DatasetHandler) ListByCreator(c *gin.Context) {
	var req listDatasetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	rows, total, err := h.svc.ListByCreator(c.Request.Context(), c.Param("username"), req.Page, req.PageSize, req.OrderBy, req.OrderType)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Paged(c, rows, req.Page, req.PageSize, total)
}

func (h *DatasetHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in datasetsvc.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	ds, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		h.log.Error("Update dataset failed", "dataset_id", id, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, ds)
}

type createFolderRequest struct {
	FolderName string `json:"folder_name" binding:"required"`
	ParentID   string `json:"folder_parent_geid"`
	Username   string `json:"username" binding:"required"`
}

func (h *DatasetHandler) CreateFolder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	var parentID *uuid.UUID
	if req.ParentID != "" {
		parsed, err := uuid.Parse(req.ParentID)
		if err != nil {
			response.Err(c, cerr.BadRequestf("invalid folder_parent_geid %q", req.ParentID))
			return
		}
		parentID = &parsed
	}
	item, err := h.svc.CreateFolder(c.Request.Context(), id, req.FolderName, parentID, req.Username)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, item)
}

func (h *DatasetHandler) ListFiles(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var folderID *uuid.UUID
	if raw := c.Query("folder_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			response.Err(c, cerr.BadRequestf("invalid folder_id %q", raw))
			return
		}
		folderID = &parsed
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "25"))

	listing, err := h.svc.ListFiles(c.Request.Context(), id, folderID, page, pageSize, c.Query("order_by"), c.Query("order_type"))
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Paged(c, gin.H{"data": listing.Items}, page, pageSize, int64(listing.Total))
}

func (h *DatasetHandler) Preview(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "item_id")
	if !ok {
		return
	}
	preview, err := h.svc.PreviewFile(c.Request.Context(), id, itemID)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, preview)
}

type verifyRequest struct {
	DatasetID string `json:"dataset_geid" binding:"required"`
}

func (h *DatasetHandler) VerifyPre(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	id, err := uuid.Parse(req.DatasetID)
	if err != nil {
		response.Err(c, cerr.BadRequestf("invalid dataset_geid %q", req.DatasetID))
		return
	}
	accessToken := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	refreshToken := c.GetHeader("Refresh-Token")
	if err := h.svc.ScheduleBIDSValidation(c.Request.Context(), id, accessToken, refreshToken); err != nil {
		h.log.Error("BIDS validation dispatch failed", "dataset_id", id, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, gin.H{"status": "scheduled"})
}

func (h *DatasetHandler) BIDSResult(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetBIDSResult(c.Request.Context(), id)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, result)
}
