// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"tenantstore/internal/domain/entity"
)

// CreateTenantRequest 登记租户请求
type CreateTenantRequest struct {
	ID                string                      `json:"id" binding:"required"`
	IsolationStrategy string                      `json:"isolation_strategy" binding:"required"`
	SchemaName        string                      `json:"schema_name"`
	ConnectionTarget  string                      `json:"connection_target"`
	Metadata          map[string]string           `json:"metadata"`
	BackupConfig      *entity.TenantBackupConfig  `json:"backup_config"`
}

// ToTenantContext 请求转换为实体
func (r *CreateTenantRequest) ToTenantContext() *entity.TenantContext {
	tc := entity.NewTenantContext(r.ID, entity.IsolationStrategy(r.IsolationStrategy))
	tc.SchemaName = r.SchemaName
	tc.ConnectionTarget = r.ConnectionTarget
	tc.Metadata = r.Metadata
	tc.BackupConfig = r.BackupConfig
	return tc
}

// UpdateTenantRequest 更新租户请求，隔离策略创建后不可变更
type UpdateTenantRequest struct {
	SchemaName       *string                    `json:"schema_name"`
	ConnectionTarget *string                    `json:"connection_target"`
	Metadata         map[string]string          `json:"metadata"`
	BackupConfig     *entity.TenantBackupConfig `json:"backup_config"`
}

// ApplyToTenantContext 更新实体
func (r *UpdateTenantRequest) ApplyToTenantContext(tc *entity.TenantContext) {
	if r.SchemaName != nil {
		tc.SchemaName = *r.SchemaName
	}
	if r.ConnectionTarget != nil {
		tc.ConnectionTarget = *r.ConnectionTarget
	}
	if r.Metadata != nil {
		tc.Metadata = r.Metadata
	}
	if r.BackupConfig != nil {
		tc.BackupConfig = r.BackupConfig
	}
}

// UpdateTenantStatusRequest 更新租户状态请求
type UpdateTenantStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TenantResponse 租户响应，连接目标可能含凭据，不回显
type TenantResponse struct {
	ID                string                     `json:"id"`
	IsolationStrategy entity.IsolationStrategy   `json:"isolation_strategy"`
	SchemaName        string                     `json:"schema_name,omitempty"`
	Status            entity.TenantStatus        `json:"status"`
	Metadata          map[string]string          `json:"metadata,omitempty"`
	BackupConfig      *entity.TenantBackupConfig `json:"backup_config,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// ToTenantResponse 实体转换为响应
func ToTenantResponse(tc *entity.TenantContext) *TenantResponse {
	if tc == nil {
		return nil
	}
	return &TenantResponse{
		ID:                tc.TenantID,
		IsolationStrategy: tc.IsolationStrategy,
		SchemaName:        tc.SchemaName,
		Status:            tc.Status,
		Metadata:          tc.Metadata,
		BackupConfig:      tc.BackupConfig,
		CreatedAt:         tc.CreatedAt,
		UpdatedAt:         tc.UpdatedAt,
	}
}

// ToTenantResponses 批量转换
func ToTenantResponses(tcs []*entity.TenantContext) []*TenantResponse {
	out := make([]*TenantResponse, 0, len(tcs))
	for _, tc := range tcs {
		out = append(out, ToTenantResponse(tc))
	}
	return out
}
