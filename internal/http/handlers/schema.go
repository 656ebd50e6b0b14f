package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos"
	"github.com/PilotDataPlatform/dataset-sub000/internal/http/response"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/schemasvc"
)

type SchemaHandler struct {
	log *logger.Logger
	svc *schemasvc.Service
}

func NewSchemaHandler(log *logger.Logger, svc *schemasvc.Service) *SchemaHandler {
	return &SchemaHandler{log: log.With("handler", "SchemaHandler"), svc: svc}
}

func (h *SchemaHandler) CreateSchema(c *gin.Context) {
	var in schemasvc.SchemaInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	sc, err := h.svc.CreateSchema(c.Request.Context(), in)
	if err != nil {
		h.log.Error("Create schema failed", "name", in.Name, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, sc)
}

func (h *SchemaHandler) GetSchema(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sc, err := h.svc.GetSchema(c.Request.Context(), id)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, sc)
}

func (h *SchemaHandler) UpdateSchema(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in schemasvc.SchemaUpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	sc, err := h.svc.UpdateSchema(c.Request.Context(), id, in)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, sc)
}

type schemaDeleteRequest struct {
	Username string `json:"username" binding:"required"`
}

func (h *SchemaHandler) DeleteSchema(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req schemaDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	if err := h.svc.DeleteSchema(c.Request.Context(), id, req.Username); err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, gin.H{"id": id})
}

type schemaListRequest struct {
	Name          *string `json:"name"`
	DatasetID     *string `json:"dataset_geid"`
	TplID         *string `json:"tpl_geid"`
	Standard      *string `json:"standard"`
	SystemDefined *bool   `json:"system_defined"`
	IsDraft       *bool   `json:"is_draft"`
	Creator       *string `json:"creator"`
}

func (h *SchemaHandler) ListSchemas(c *gin.Context) {
	var req schemaListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	filter := repos.SchemaFilter{
		Name:          req.Name,
		Standard:      req.Standard,
		SystemDefined: req.SystemDefined,
		IsDraft:       req.IsDraft,
		Creator:       req.Creator,
	}
	if req.DatasetID != nil {
		id, err := uuid.Parse(*req.DatasetID)
		if err != nil {
			response.Err(c, cerr.BadRequestf("invalid dataset_geid %q", *req.DatasetID))
			return
		}
		filter.DatasetID = &id
	}
	if req.TplID != nil {
		id, err := uuid.Parse(*req.TplID)
		if err != nil {
			response.Err(c, cerr.BadRequestf("invalid tpl_geid %q", *req.TplID))
			return
		}
		filter.TplID = &id
	}
	rows, err := h.svc.ListSchemas(c.Request.Context(), filter)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, rows)
}

// templateScope resolves the :id path segment of the template endpoints.
// The literal "default" scopes the call to the system-wide templates that
// belong to no dataset.
func templateScope(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Param("id")
	if raw == "default" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Err(c, cerr.BadRequestf("invalid id %q", raw))
		return nil, false
	}
	return &id, true
}

func (h *SchemaHandler) CreateTemplate(c *gin.Context) {
	datasetID, ok := templateScope(c)
	if !ok {
		return
	}
	var in schemasvc.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	tpl, err := h.svc.CreateTemplate(c.Request.Context(), datasetID, in)
	if err != nil {
		h.log.Error("Create template failed", "name", in.Name, "error", err)
		response.Err(c, err)
		return
	}
	response.OK(c, tpl)
}

func (h *SchemaHandler) ListTemplates(c *gin.Context) {
	datasetID, ok := templateScope(c)
	if !ok {
		return
	}
	rows, err := h.svc.ListTemplates(c.Request.Context(), datasetID)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, rows)
}

func (h *SchemaHandler) GetTemplate(c *gin.Context) {
	tplID, ok := parseID(c, "tid")
	if !ok {
		return
	}
	tpl, err := h.svc.GetTemplate(c.Request.Context(), tplID)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, tpl)
}

func (h *SchemaHandler) UpdateTemplate(c *gin.Context) {
	tplID, ok := parseID(c, "tid")
	if !ok {
		return
	}
	var in schemasvc.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err)
		return
	}
	tpl, err := h.svc.UpdateTemplate(c.Request.Context(), tplID, in)
	if err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, tpl)
}

type templateDeleteRequest struct {
	Username string `json:"username" binding:"required"`
}

func (h *SchemaHandler) DeleteTemplate(c *gin.Context) {
	tplID, ok := parseID(c, "tid")
	if !ok {
		return
	}
	var req templateDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	if err := h.svc.DeleteTemplate(c.Request.Context(), tplID, req.Username); err != nil {
		response.Err(c, err)
		return
	}
	response.OK(c, gin.H{"id": tplID})
}
