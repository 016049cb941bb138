// Package entity 定义领域实体
package entity

import "time"

// BackupRecord 描述某租户的一次时间点导出
type BackupRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FilePath  string    `json:"file_path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
