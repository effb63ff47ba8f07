package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/clearstack/internal/api/middleware"
	"github.com/d60-Lab/clearstack/internal/service"
	"github.com/d60-Lab/clearstack/pkg/response"
)

type flagURI struct {
	Key string `uri:"key" binding:"required,flagkey"`
}

type flagRequest struct {
	Enabled *bool  `json:"enabled" binding:"required"`
	Scope   string `json:"scope" binding:"omitempty,oneof=company global"`
}

// ListFlags 当前租户生效的功能开关
// @Summary 功能开关列表
// @Tags 功能开关
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]service.FlagView}
// @Router /api/v1/admin/flags [get]
func (h *Handler) ListFlags(c *gin.Context) {
	list, err := h.flags.List(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, list)
}

// SetFlag 修改功能开关；scope=global 仅 superadmin
// @Summary 修改功能开关
// @Tags 功能开关
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key path string true "开关"
// @Param request body flagRequest true "取值"
// @Success 200 {object} response.Response{data=model.FeatureFlag}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/flags/{key} [patch]
func (h *Handler) SetFlag(c *gin.Context) {
	var uri flagURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var companyID *string
	if req.Scope == "global" {
		if !middleware.HasRole(middleware.CurrentClaims(c), middleware.RoleSuperAdmin) {
			response.Forbidden(c, "global flags require superadmin")
			return
		}
	} else {
		id := middleware.CompanyID(c)
		companyID = &id
	}

	f, err := h.flags.Set(c.Request.Context(), uri.Key, companyID, *req.Enabled)
	if err != nil {
		if errors.Is(err, service.ErrUnknownFlag) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, f)
}
