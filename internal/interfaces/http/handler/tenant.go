// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"tenantstore/internal/domain/entity"
	"tenantstore/internal/domain/repository"
	"tenantstore/internal/interfaces/http/dto"
	"tenantstore/pkg/logger"
)

// TenantHandler 租户注册表的控制面处理器
// 这些接口管理租户登记信息，不要求激活租户上下文
type TenantHandler struct {
	registry repository.TenantRegistry
}

// NewTenantHandler 创建租户处理器
func NewTenantHandler(registry repository.TenantRegistry) *TenantHandler {
	return &TenantHandler{registry: registry}
}

// Create 登记租户
// @Summary 登记租户
// @Tags Tenants
// @Accept json
// @Produce json
// @Param body body dto.CreateTenantRequest true "租户配置"
// @Success 201 {object} dto.Response[dto.TenantResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/tenants [post]
func (h *TenantHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	tc := req.ToTenantContext()
	if err := tc.Validate(); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	if err := h.registry.Create(ctx, tc); err != nil {
		logger.Error(ctx, "failed to create tenant", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Created(c, dto.ToTenantResponse(tc))
}

// Get 获取租户登记信息
// @Summary 获取租户
// @Tags Tenants
// @Produce json
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/tenants/{id} [get]
func (h *TenantHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	tc, err := h.registry.GetByID(ctx, c.Param("id"))
	if err != nil {
		logger.Error(ctx, "failed to get tenant", err)
		dto.FromAppError(c, err)
		return
	}
	if tc == nil {
		dto.NotFound(c, "tenant not found")
		return
	}

	dto.Success(c, dto.ToTenantResponse(tc))
}

// List 列出全部租户
// @Summary 列出租户
// @Tags Tenants
// @Produce json
// @Success 200 {object} dto.Response[[]dto.TenantResponse]
// @Router /v1/tenants [get]
func (h *TenantHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	tenants, err := h.registry.List(ctx)
	if err != nil {
		logger.Error(ctx, "failed to list tenants", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToTenantResponses(tenants))
}

// Update 更新租户登记信息
// @Summary 更新租户
// @Tags Tenants
// @Accept json
// @Produce json
// @Param body body dto.UpdateTenantRequest true "更新内容"
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/tenants/{id} [put]
func (h *TenantHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	tc, err := h.registry.GetByID(ctx, id)
	if err != nil {
		logger.Error(ctx, "failed to get tenant", err)
		dto.FromAppError(c, err)
		return
	}
	if tc == nil {
		dto.NotFound(c, "tenant not found")
		return
	}

	req.ApplyToTenantContext(tc)
	if err := tc.Validate(); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	if err := h.registry.Update(ctx, tc); err != nil {
		logger.Error(ctx, "failed to update tenant", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToTenantResponse(tc))
}

// UpdateStatus 更新租户状态
// @Summary 更新租户状态
// @Tags Tenants
// @Accept json
// @Produce json
// @Param body body dto.UpdateTenantStatusRequest true "目标状态"
// @Success 204
// @Router /v1/tenants/{id}/status [put]
func (h *TenantHandler) UpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.UpdateTenantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	status := entity.TenantStatus(req.Status)
	switch status {
	case entity.TenantStatusActive, entity.TenantStatusSuspended, entity.TenantStatusDeleted:
	default:
		dto.BadRequest(c, "unknown tenant status: "+req.Status)
		return
	}

	if err := h.registry.UpdateStatus(ctx, id, status); err != nil {
		logger.Error(ctx, "failed to update tenant status", err)
		dto.FromAppError(c, err)
		return
	}

	dto.NoContent(c)
}

// Delete 注销租户
// @Summary 注销租户
// @Tags Tenants
// @Success 204
// @Router /v1/tenants/{id} [delete]
func (h *TenantHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.registry.Delete(ctx, c.Param("id")); err != nil {
		logger.Error(ctx, "failed to delete tenant", err)
		dto.FromAppError(c, err)
		return
	}

	dto.NoContent(c)
}
