package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/clearstack/internal/api/middleware"
	"github.com/d60-Lab/clearstack/internal/service"
	"github.com/d60-Lab/clearstack/pkg/response"
)

type dispatchRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=1000"`
}

// OutboxStats 当前租户外发盒统计
// @Summary 外发盒统计
// @Tags 外发盒
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.OutboxStats}
// @Failure 401 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/admin/outbox/stats [get]
func (h *Handler) OutboxStats(c *gin.Context) {
	st, err := h.integration.Stats(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, st)
}

// DispatchOutbox 手动触发一次派发
// @Summary 手动派发
// @Tags 外发盒
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dispatchRequest false "派发上限"
// @Success 200 {object} response.Response{data=service.Result}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/admin/outbox/dispatch [post]
func (h *Handler) DispatchOutbox(c *gin.Context) {
	var req dispatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	res, err := h.integration.Dispatch(c.Request.Context(), req.Limit)
	if err != nil {
		if service.IsConflict(err) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, res)
}

// SchedulerStatus 调度器状态
// @Summary 调度器状态
// @Tags 外发盒
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.SchedulerStatus}
// @Router /api/v1/admin/scheduler/status [get]
func (h *Handler) SchedulerStatus(c *gin.Context) {
	response.Success(c, h.integration.SchedulerStatus())
}
