package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/http/response"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/fileops"
	"github.com/PilotDataPlatform/dataset-sub000/internal/tasks"
)

type FileHandler struct {
	log     *logger.Logger
	svc     *fileops.Service
	tracker *tasks.Tracker
}

func NewFileHandler(log *logger.Logger, svc *fileops.Service, tracker *tasks.Tracker) *FileHandler {
	return &FileHandler{log: log.With("handler", "FileHandler"), svc: svc, tracker: tracker}
}

func parseUUIDList(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, cerr.BadRequestf("invalid item id %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}

type importRequest struct {
	SourceList  []string `json:"source_list" binding:"required"`
	ProjectID   string   `json:"project_geid" binding:"required"`
	ProjectCode string   `json:"project_code"`
	Operator    string   `json:"operator" binding:"required"`
}

func (h *FileHandler) Import(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		response.Err(c, cerr.BadRequestf("invalid project_geid %q", req.ProjectID))
		return
	}
	sources, err := parseUUIDList(req.SourceList)
	if err != nil {
		response.Err(c, err)
		return
	}
	resp, err := h.svc.Import(c.Request.Context(), id, fileops.ImportInput{
		SourceList:  sources,
		ProjectID:   projectID,
		ProjectCode: req.ProjectCode,
		Operator:    req.Operator,
		SessionID:   c.GetHeader("Session-ID"),
	})
	if err != nil {
		h.log.Error("Import dispatch failed", "dataset_id", id, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, resp)
}

type moveRequest struct {
	SourceList []string `json:"source_list" binding:"required"`
	TargetID   string   `json:"target_geid" binding:"required"`
	Operator   string   `json:"operator" binding:"required"`
}

func (h *FileHandler) Move(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		response.Err(c, cerr.BadRequestf("invalid target_geid %q", req.TargetID))
		return
	}
	sources, err := parseUUIDList(req.SourceList)
	if err != nil {
		response.Err(c, err)
		return
	}
	resp, err := h.svc.Move(c.Request.Context(), id, fileops.MoveInput{
		SourceList: sources,
		TargetID:   targetID,
		Operator:   req.Operator,
		SessionID:  c.GetHeader("Session-ID"),
	})
	if err != nil {
		h.log.Error("Move dispatch failed", "dataset_id", id, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, resp)
}

type renameRequest struct {
	NewName  string `json:"new_name" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

func (h *FileHandler) Rename(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "item_id")
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	resp, err := h.svc.Rename(c.Request.Context(), id, itemID, fileops.RenameInput{
		NewName:   req.NewName,
		Operator:  req.Operator,
		SessionID: c.GetHeader("Session-ID"),
	})
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, resp)
}

type deleteRequest struct {
	SourceList []string `json:"source_list" binding:"required"`
	Operator   string   `json:"operator" binding:"required"`
}

func (h *FileHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	sources, err := parseUUIDList(req.SourceList)
	if err != nil {
		response.Err(c, err)
		return
	}
	resp, err := h.svc.Delete(c.Request.Context(), id, fileops.DeleteInput{
		SourceList: sources,
		Operator:   req.Operator,
		SessionID:  c.GetHeader("Session-ID"),
	})
	if err != nil {
		h.log.Error("Delete dispatch failed", "dataset_id", id, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, resp)
}

// Tasks lists the job records recorded for one batch operation against the
// dataset, newest state per job.
func (h *FileHandler) Tasks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	action := c.Query("action")
	if action == "" {
		response.Err(c, cerr.BadRequestf("action query parameter is required"))
		return
	}
	records, err := h.tracker.ListByTask(c.Request.Context(), action+"-"+id.String())
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, records)
}
