// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"tenantstore/internal/domain/entity"
)

// BackupResponse 备份产物响应，文件系统路径不对外暴露
type BackupResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// ToBackupResponse 实体转换为响应
func ToBackupResponse(r *entity.BackupRecord) *BackupResponse {
	if r == nil {
		return nil
	}
	return &BackupResponse{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Size:      r.Size,
		CreatedAt: r.CreatedAt,
	}
}

// ToBackupResponses 批量转换
func ToBackupResponses(records []*entity.BackupRecord) []*BackupResponse {
	out := make([]*BackupResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ToBackupResponse(r))
	}
	return out
}
