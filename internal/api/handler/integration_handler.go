package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/internal/api/middleware"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/internal/service"
	"github.com/d60-Lab/clearstack/pkg/logger"
	"github.com/d60-Lab/clearstack/pkg/response"
)

type settingsRequest struct {
	ProspectEnabled *bool `json:"prospect_enabled"`
	Anonymize       *bool `json:"anonymize"`
}

type testEventRequest struct {
	Contact string `json:"contact" binding:"omitempty,email"`
}

type exportRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=365"`
}

// GetSettings 读取集成配置（首次访问时懒创建）
// @Summary 读取集成配置
// @Tags 集成
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=model.CompanyIntegrationSetting}
// @Router /api/v1/admin/integration/settings [get]
func (h *Handler) GetSettings(c *gin.Context) {
	st, err := h.integration.GetSettings(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, st)
}

// UpdateSettings 修改集成配置
// @Summary 修改集成配置
// @Tags 集成
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body settingsRequest true "配置"
// @Success 200 {object} response.Response{data=model.CompanyIntegrationSetting}
// @Failure 400 {object} response.Response
// @Router /api/v1/admin/integration/settings [put]
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.ProspectEnabled == nil && req.Anonymize == nil {
		response.BadRequest(c, "nothing to update")
		return
	}
	st, err := h.integration.UpdateSettings(c.Request.Context(), middleware.CompanyID(c), repository.SettingPatch{
		ProspectEnabled: req.ProspectEnabled,
		Anonymize:       req.Anonymize,
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, st)
}

// SendTestEvent 直接向下游发送一条测试事件（不进外发盒）
// @Summary 发送测试事件
// @Tags 集成
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body testEventRequest false "联系人"
// @Success 200 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/admin/integration/test [post]
func (h *Handler) SendTestEvent(c *gin.Context) {
	var req testEventRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if err := h.integration.SendTestEvent(c.Request.Context(), middleware.CompanyID(c), req.Contact); err != nil {
		logger.Warn("test event not delivered", zap.String("company_id", middleware.CompanyID(c)), zap.Error(err))
		response.Error(c, http.StatusBadGateway, "test event not delivered")
		return
	}
	response.Success(c, gin.H{"delivered": true})
}

// Export 批量导出近 N 天数据到外发盒
// @Summary 批量导出
// @Tags 集成
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body exportRequest false "天数，默认 30，最大 365"
// @Success 200 {object} response.Response{data=service.ExportResult}
// @Failure 400 {object} response.Response
// @Router /api/v1/admin/integration/export [post]
func (h *Handler) Export(c *gin.Context) {
	var req exportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	out, err := h.integration.Export(c.Request.Context(), middleware.CompanyID(c), req.Days)
	if err != nil {
		if errors.Is(err, service.ErrIntegrationDisabled) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, out)
}
