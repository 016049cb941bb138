// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"tenantstore/internal/interfaces/http/dto"
	"tenantstore/internal/interfaces/http/middleware"
	"tenantstore/internal/store"
	"tenantstore/pkg/logger"
)

// BackupHandler 数据面处理器，操作对象始终是已激活的租户
type BackupHandler struct {
	store *store.Store
}

// NewBackupHandler 创建备份处理器
func NewBackupHandler(st *store.Store) *BackupHandler {
	return &BackupHandler{store: st}
}

// Create 为活动租户创建备份
// @Summary 创建备份
// @Tags Backups
// @Produce json
// @Success 201 {object} dto.Response[dto.BackupResponse]
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/backups [post]
func (h *BackupHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	record, err := h.store.CreateBackup(ctx, middleware.ActiveTenantID(c))
	if err != nil {
		logger.Error(ctx, "backup creation failed", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Created(c, dto.ToBackupResponse(record))
}

// List 列出活动租户的备份，最新在前
// @Summary 列出备份
// @Tags Backups
// @Produce json
// @Success 200 {object} dto.Response[[]dto.BackupResponse]
// @Router /v1/backups [get]
func (h *BackupHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	records, err := h.store.ListBackups(ctx, middleware.ActiveTenantID(c))
	if err != nil {
		logger.Error(ctx, "backup listing failed", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToBackupResponses(records))
}

// Restore 从指定产物恢复活动租户的数据
// @Summary 恢复备份
// @Tags Backups
// @Produce json
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/backups/{id}/restore [post]
func (h *BackupHandler) Restore(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.store.RestoreBackup(ctx, middleware.ActiveTenantID(c), c.Param("id")); err != nil {
		logger.Error(ctx, "backup restore failed", err)
		dto.FromAppError(c, err)
		return
	}

	dto.NoContent(c)
}

// RotateKey 轮换活动租户的数据密钥
// @Summary 轮换加密密钥
// @Tags Encryption
// @Produce json
// @Success 204
// @Router /v1/encryption/rotate [post]
func (h *BackupHandler) RotateKey(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.store.RotateEncryptionKey(ctx, middleware.ActiveTenantID(c)); err != nil {
		logger.Error(ctx, "key rotation failed", err)
		dto.FromAppError(c, err)
		return
	}

	dto.NoContent(c)
}
